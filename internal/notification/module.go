package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shandysiswandi/otpgate/internal/notification/inbound"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/mq"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/sms"
	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	pkgsms "github.com/shandysiswandi/otpgate/internal/pkg/sms"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

type Dependency struct {
	Messaging  messaging.Messaging        `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`
	Validator  validator.Validator        `validate:"required"`

	// Ctx bounds the consumers; without it none are started.
	Ctx context.Context

	// HTTPClient is shared by the provider drivers. Nil uses a default client.
	HTTPClient *http.Client
}

// New wires the SMS sender behind the dispatch consumer.
func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	sender, err := newSender(dep)
	if err != nil {
		return err
	}

	uc := usecase.NewNotification(usecase.Dependency{
		RepoSMS:    sender,
		RepoEvent:  mq.NewMessaging(dep.Messaging, dep.Instrument),
		Clock:      dep.Clock,
		Config:     dep.Config,
		Validator:  dep.Validator,
		Instrument: dep.Instrument,
	})

	if dep.Ctx == nil {
		return nil
	}

	inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)

	return nil
}

func newSender(dep Dependency) (*sms.SMS, error) {
	driver := dep.Config.GetString("modules.notification.sms_driver")
	if driver == "" {
		driver = pkgsms.DriverLog
	}

	client, err := pkgsms.NewFromDriver(driver, dep.HTTPClient, pkgsms.OptionsFromConfig(dep.Config), dep.Instrument)
	if err != nil {
		return nil, fmt.Errorf("sms driver %q: %w", driver, err)
	}

	return sms.New(client, dep.Instrument), nil
}
