// Command publishtoken manages the API token that protects the publish API.
//
// Usage:
//
//	publishtoken <command>
//
// Commands:
//
//	set       Prompt for a token (twice) and store its bcrypt hash.
//	generate  Create a random token, store it and print it once.
//	status    Report whether a token is configured.
//	clear     Remove the token. The API is open until a new one is set.
//
// When stdin is not a terminal, set reads a single line from it instead of
// prompting, so the token can be piped in from a secret store.
//
// Environment:
//
//	DATABASE_DIR - Path to database directory (default: /database)
package main
