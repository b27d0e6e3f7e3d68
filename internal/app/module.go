package app

import (
	"fmt"

	"github.com/shandysiswandi/otpgate/internal/notification"
	"github.com/shandysiswandi/otpgate/internal/phoneauth"
)

func (a *App) initModules() error {
	if a.config.GetBool("modules.phoneauth.enabled") {
		err := phoneauth.New(phoneauth.Dependency{
			Ctx:        a.ctx,
			DBConn:     a.dbConn,
			CacheConn:  a.cacheConn,
			Messaging:  a.messaging,
			HTTPClient: a.httpClient,
			Goroutine:  a.goroutine,
			Router:     a.router,
			Config:     a.config,
			Instrument: a.ins,
			UID:        a.uid,
			HMAC:       a.hmac,
			Clock:      a.clock,
			Validator:  a.validator,
			JWT:        a.jwt,
		})
		if err != nil {
			return fmt.Errorf("phoneauth: %w", err)
		}
	}

	if a.config.GetBool("modules.notification.enabled") {
		err := notification.New(notification.Dependency{
			Ctx:        a.ctx,
			Messaging:  a.messaging,
			HTTPClient: a.httpClient,
			Config:     a.config,
			Instrument: a.ins,
			UUID:       a.uuid,
			Clock:      a.clock,
			Goroutine:  a.goroutine,
			Validator:  a.validator,
		})
		if err != nil {
			return fmt.Errorf("notification: %w", err)
		}
	}

	return nil
}
