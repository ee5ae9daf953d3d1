// Propstudy - Broadcast Coverage and Interference Study Engine
// Copyright 2026 Spectrum Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/spectrumlab/propstudy

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags plus the constraints tags cannot express.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("field %s failed %q validation", first.Namespace(), first.Tag())
		}
		return err
	}

	if !filepath.IsAbs(c.Cache.RootDir) {
		return fmt.Errorf("cache.root_dir must be an absolute path, got %q", c.Cache.RootDir)
	}
	if filepath.Clean(c.Cache.DatabaseID) != c.Cache.DatabaseID ||
		filepath.Base(c.Cache.DatabaseID) != c.Cache.DatabaseID {
		return fmt.Errorf("cache.database_id must be a bare directory name, got %q", c.Cache.DatabaseID)
	}
	return nil
}
