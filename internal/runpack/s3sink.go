/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package runpack

// No S3Sink type ships, only the Sink interface: the spec's Non-goals
// exclude wiring a concrete object-store broker SDK. Any
// S3-API-compatible client satisfying Sink (see runpack.go)
// can be adapted to this shape by its caller; decisiongate ships no
// AWS/MinIO/GCS client itself.
//
// S3SinkConfig documents the coordinates a concrete adapter would need
// so callers wiring their own client have a stable shape to target.
type S3SinkConfig struct {
	Bucket    string
	Endpoint  string
	Region    string
	KeyPrefix string
}
