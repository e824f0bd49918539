/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package notifications

import "errors"

// Common errors that can be returned by notification operations
var (
	// ErrInvalidRequest is returned when a request is invalid.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoChannel is returned when no channel is registered under a name.
	ErrNoChannel = errors.New("no channel registered")

	// ErrChannelError is returned when a channel fails to deliver.
	ErrChannelError = errors.New("channel failed to deliver notification")

	// ErrWebhookStatus is returned for non-2xx webhook responses.
	ErrWebhookStatus = errors.New("webhook returned non-2xx status")

	// ErrConfigurationError is returned when there's an issue with configuration.
	ErrConfigurationError = errors.New("configuration error")
)
