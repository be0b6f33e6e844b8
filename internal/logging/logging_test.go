package logging

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Parallel()
	for _, format := range []string{"", "console", "json", "pretty"} {
		p, err := NewProvider(Config{Level: "debug", Format: format})
		require.NoError(t, err, "format %q", format)
		l := p.Named("engine")
		require.NotNil(t, l)
		l.Debug("provider.ready", "format", format)
	}
}

func TestNewProvider_Rejects(t *testing.T) {
	t.Parallel()
	_, err := NewProvider(Config{Format: "xml"})
	assert.Error(t, err)
	_, err = NewProvider(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNamed_NilProvider(t *testing.T) {
	t.Parallel()
	var p *Provider
	l := p.Named("x")
	assert.Equal(t, Nop(), l)
	l.Info("ignored")
}

func TestAdapterDelegates(t *testing.T) {
	t.Parallel()
	stub := &stubLogger{}
	l := &adapter{inner: stub}
	l.Debug("d")
	l.Info("i", "k", 1)
	l.Warn("w")
	l.Error("e")
	assert.Equal(t, []string{"d", "i", "w", "e"}, stub.calls)
}

type stubLogger struct {
	calls []string
}

var _ glog.Logger = (*stubLogger)(nil)

func (s *stubLogger) Trace(msg string, _ ...any) { s.calls = append(s.calls, msg) }
func (s *stubLogger) Debug(msg string, _ ...any) { s.calls = append(s.calls, msg) }
func (s *stubLogger) Info(msg string, _ ...any)  { s.calls = append(s.calls, msg) }
func (s *stubLogger) Warn(msg string, _ ...any)  { s.calls = append(s.calls, msg) }
func (s *stubLogger) Error(msg string, _ ...any) { s.calls = append(s.calls, msg) }
func (s *stubLogger) Fatal(msg string, _ ...any) { s.calls = append(s.calls, msg) }

func (s *stubLogger) WithContext(context.Context) glog.Logger { return s }
