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

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/models"
)

// SendFunc delivers a message to one service URL.
type SendFunc func(rawURL, message string) error

// ShoutrrrChannel fans a notification out to chat and push services.
type ShoutrrrChannel struct {
	name string
	urls []string
	send SendFunc
}

func NewShoutrrrChannel(cfg *config.ShoutrrrConfig) (*ShoutrrrChannel, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("%w: shoutrrr channel %q has no urls", ErrConfigurationError, cfg.Name)
	}

	name := cfg.Name
	if name == "" {
		name = "shoutrrr"
	}

	return &ShoutrrrChannel{name: name, urls: cfg.URLs, send: shoutrrr.Send}, nil
}

func (s *ShoutrrrChannel) Name() string {
	return s.name
}

// Send delivers to every configured URL and fails if any of them failed.
func (s *ShoutrrrChannel) Send(ctx context.Context, n *models.Notification, _ []string) error {
	message := formatMessage(n)

	var errs []error

	for _, u := range s.urls {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.send(u, message); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func formatMessage(n *models.Notification) string {
	if n.Title == "" {
		return n.Message
	}

	return n.Title + "\n\n" + n.Message
}
