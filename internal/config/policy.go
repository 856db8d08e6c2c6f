package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RegistrationPolicy holds the tunables operators may change without a restart.
type RegistrationPolicy struct {
	BulkMaxItems          int           `mapstructure:"bulkMaxItems"`
	LockWaitTimeout       time.Duration `mapstructure:"lockWaitTimeout"`
	PaymentAwaitTimeout   time.Duration `mapstructure:"paymentAwaitTimeout"`
	NotificationQueueSize int           `mapstructure:"notificationQueueSize"`
}

func DefaultRegistrationPolicy() RegistrationPolicy {
	return RegistrationPolicy{
		BulkMaxItems:          100,
		LockWaitTimeout:       5 * time.Second,
		PaymentAwaitTimeout:   10 * time.Second,
		NotificationQueueSize: 1024,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds RegistrationPolicy
}

// NewPolicyHolder reads registration.yml when present and reloads it on change.
func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.policy")

	v := viper.New()
	v.SetConfigName("registration")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/eventreg")
	v.AddConfigPath(".")

	v.SetEnvPrefix("EVENTREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRegistrationPolicy()
	v.SetDefault("registration.bulkMaxItems", defaults.BulkMaxItems)
	v.SetDefault("registration.lockWaitTimeout", defaults.LockWaitTimeout)
	v.SetDefault("registration.paymentAwaitTimeout", defaults.PaymentAwaitTimeout)
	v.SetDefault("registration.notificationQueueSize", defaults.NotificationQueueSize)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var policy RegistrationPolicy
	if err := v.UnmarshalKey("registration", &policy); err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated RegistrationPolicy
			if err := v.UnmarshalKey("registration", &updated); err != nil {
				log.Warn("registration policy reload failed", zap.Error(err))
				return
			}
			if err := validatePolicy(updated); err != nil {
				log.Warn("invalid registration policy ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("registration policy reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticPolicyHolder returns a holder pinned to the given policy.
func NewStaticPolicyHolder(policy RegistrationPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Get() RegistrationPolicy {
	if h == nil {
		return DefaultRegistrationPolicy()
	}
	policy, ok := h.current.Load().(RegistrationPolicy)
	if !ok {
		return DefaultRegistrationPolicy()
	}
	return policy
}

func validatePolicy(policy RegistrationPolicy) error {
	if policy.BulkMaxItems <= 0 {
		return errors.New("registration.bulkMaxItems must be positive")
	}
	if policy.LockWaitTimeout <= 0 {
		return errors.New("registration.lockWaitTimeout must be positive")
	}
	if policy.PaymentAwaitTimeout <= 0 {
		return errors.New("registration.paymentAwaitTimeout must be positive")
	}
	if policy.NotificationQueueSize <= 0 {
		return errors.New("registration.notificationQueueSize must be positive")
	}
	return nil
}
