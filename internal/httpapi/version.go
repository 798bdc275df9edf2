// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package httpapi

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/labstack/echo/v4"
	"github.com/samber/oops"
)

// Version is the semantic version of the HTTP API contract.
var Version = semver.MustParse("1.0.0")

// VersionHeader lets a client state the API version it was written against.
const VersionHeader = "X-API-Version"

// APIVersion returns the MAJOR.MINOR string published in response envelopes.
func APIVersion() string {
	return fmt.Sprintf("%d.%d", Version.Major(), Version.Minor())
}

// envelope wraps every successful JSON body.
type envelope struct {
	Data       any    `json:"data"`
	APIVersion string `json:"apiVersion"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Data: data, APIVersion: APIVersion()})
}

// checkVersion rejects requests whose X-API-Version is not compatible with
// Version. "1" and "1.0" accept any 1.x server; requests without the header pass.
func checkVersion(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requested := c.Request().Header.Get(VersionHeader)
		if requested == "" {
			return next(c)
		}
		constraint, err := semver.NewConstraint("^" + requested)
		if err != nil {
			return oops.Code("API_VERSION_UNSUPPORTED").With("requested", requested).Wrap(err)
		}
		if !constraint.Check(Version) {
			return oops.Code("API_VERSION_UNSUPPORTED").
				With("requested", requested).
				With("served", Version.String()).
				Errorf("api version %s is not served", requested)
		}
		return next(c)
	}
}
