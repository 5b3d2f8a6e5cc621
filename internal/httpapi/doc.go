// Package httpapi is the optional HTTP front end of the gateway.
//
// Routes: GET /api/status, GET /api/filters?direction=import|export,
// POST /api/convert, and GET /api/history. Inline conversions answer with the
// converted bytes as application/octet-stream; conversions to a path answer
// 204. Faults are JSON bodies with code, message, and available filter names.
// A configured token enables bearer auth; configured origins enable CORS.
package httpapi
