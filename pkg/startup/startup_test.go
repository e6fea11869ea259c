package startup

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

func (r *recorder) dep(name string, requires ...string) Dependency {
	return Dependency{
		Name:     name,
		Requires: requires,
		OnStart: func(context.Context) error {
			r.events = append(r.events, "start:"+name)
			return nil
		},
		OnStop: func(context.Context) error {
			r.events = append(r.events, "stop:"+name)
			return nil
		},
	}
}

func newStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.unit = time.Millisecond
	return s
}

func TestStartRespectsDependencies(t *testing.T) {
	r := &recorder{}
	s := newStartup(1)
	s.AddDependency(r.dep("server", "registry"))
	s.AddDependency(r.dep("registry", "database"))
	s.AddDependency(r.dep("database"))
	s.AddDependency(r.dep("kafka"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:database", "start:registry", "start:server", "start:kafka"}, r.events)
	assert.Equal(t, StartupStatusStarted, s.Status("server"))

	r.events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:kafka", "stop:server", "stop:registry", "stop:database"}, r.events)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartRetries(t *testing.T) {
	calls := 0
	s := newStartup(3)
	s.AddDependency(Dependency{Name: "database", OnStart: func(context.Context) error {
		calls++
		if calls < 3 {
			return stderrors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartGivesUp(t *testing.T) {
	s := newStartup(2)
	s.AddDependency(Dependency{Name: "database", OnStart: func(context.Context) error {
		return stderrors.New("connection refused")
	}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StartupStatusFailed, s.Status("database"))
}

func TestStartRejectsUnknownAndCycles(t *testing.T) {
	s := newStartup(1)
	s.AddDependency(Dependency{Name: "server", Requires: []string{"missing"}})
	assert.ErrorContains(t, s.Start(context.Background()), "unknown dependency 'missing'")

	s = newStartup(1)
	s.AddDependency(Dependency{Name: "a", Requires: []string{"b"}})
	s.AddDependency(Dependency{Name: "b", Requires: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "dependency cycle")
}

func TestStopOnlyStopsStarted(t *testing.T) {
	r := &recorder{}
	s := newStartup(1)
	s.AddDependency(r.dep("database"))
	s.AddDependency(Dependency{Name: "kafka", OnStart: func(context.Context) error {
		return stderrors.New("broker down")
	}, OnStop: func(context.Context) error {
		r.events = append(r.events, "stop:kafka")
		return nil
	}})

	require.Error(t, s.Start(context.Background()))
	r.events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:database"}, r.events)
}
