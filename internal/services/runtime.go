package services

import (
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/huangang/erpsettings/pkg/logger"
)

// AppRuntime holds process-wide settings applied outside the database,
// currently the application timezone.
type AppRuntime struct {
	mu       sync.RWMutex
	location *time.Location
}

func NewAppRuntime() *AppRuntime {
	return &AppRuntime{location: time.UTC}
}

// LoadTimezone resolves an IANA identifier. It is called before any write
// so an unknown zone fails the whole update.
func LoadTimezone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil || name == "" || name == "Local" {
		return nil, &ConfigurationError{Field: "default_timezone", Message: "The default timezone \"" + name + "\" is not a valid timezone."}
	}
	return loc, nil
}

// SetTimezone switches the application timezone and the log timestamps.
func (r *AppRuntime) SetTimezone(name string) error {
	loc, err := LoadTimezone(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.location = loc
	r.mu.Unlock()
	logger.SetLocation(loc)
	return nil
}

func (r *AppRuntime) Location() *time.Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.location
}

// Now returns the current time in the application timezone.
func (r *AppRuntime) Now() time.Time {
	return time.Now().In(r.Location())
}
