// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the auth service over HTTP.
//
// Every route answers POST with a JSON body. Successful calls return
// {"token": "..."}; failures return {"message": "..."} written by
// respondError, the only error path in the package.
package httpapi
