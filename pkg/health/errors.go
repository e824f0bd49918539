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

package health

import "errors"

var (
	// ErrNoProbeURL is returned when a client has no health check URL.
	ErrNoProbeURL = errors.New("client has no health check url")
	// ErrNotDue is returned when a single client check is not due.
	ErrNotDue = errors.New("health check not due")
	// ErrHTTPStatus wraps non-2xx probe responses.
	ErrHTTPStatus = errors.New("unexpected http status")
)
