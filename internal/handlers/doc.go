// Package handlers implements the HTTP API of the media publisher.
//
// The request surface mirrors the publisher operations:
//
//	POST /api/refresh-gallery  {"path"}                       -> {"uri"}
//	POST /api/save-file        {"file","name"}                -> result
//	POST /api/save-image       {"imageBytes","quality","name"} or multipart -> result
//	POST /api/publish          unified request                -> result
//
// A result is {"isSuccess","filePath","errorMessage"}; a failed publish is
// still a 200 response, with the failure code in X-Publish-Error. Malformed
// request bodies are 400.
//
// Read endpoints list indexed assets and serve their thumbnails; /health,
// /healthz, /livez, /readyz and /version report service state.
package handlers
