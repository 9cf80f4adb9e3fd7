package main

// General API documentation for swaggo. The document lives in
// internal/httpapi/docs and is served when built with -tags=swagger.
//
// @title           modelrunner API
// @version         1.0
// @description     HTTP gateway for a single-model inference backend.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
