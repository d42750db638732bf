// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Parley components.
//
// Configuration is loaded from a single file specified by:
//   - PARLEY_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; environment variables do not override
// individual values. Every knob has a default, so an empty file (or
// none at all, when the caller starts from Default) is valid.
package config
