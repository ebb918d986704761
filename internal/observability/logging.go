// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability wires the gateway's structured logging, metrics,
// and tracing. One Logger is constructed at startup and threaded through
// the dependency graph; no package keeps a logging global.
package observability

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// NewLogger builds the process-wide root logger. format is "json"
// (production default) or "console" (development); level is any hclog
// level name ("trace", "debug", "info", "warn", "error").
func NewLogger(level, format string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "gateway",
		Level:      hclog.LevelFromString(level),
		Output:     os.Stderr,
		JSONFormat: strings.EqualFold(format, "json"),
	})
}

// Named returns a sub-logger scoped to one subsystem, e.g. "auth", "store",
// "registry", "mcp", "orchestrator", "http".
func Named(root hclog.Logger, name string) hclog.Logger {
	return root.Named(name)
}
