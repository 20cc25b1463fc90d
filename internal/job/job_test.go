package job

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeMarshalFlattensFields(t *testing.T) {
	t.Parallel()

	env := OK(map[string]any{"source": "<html></html>", "code": 999})
	body, err := json.Marshal(env)
	require.NoError(t, err)
	require.JSONEq(t, `{"code":200,"source":"<html></html>"}`, string(body))
}

func TestEnvelopeMarshalOmitsEmptyMessage(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(Fail(http.StatusTooManyRequests, "Too Many Requests"))
	require.NoError(t, err)
	require.JSONEq(t, `{"code":429,"message":"Too Many Requests"}`, string(body))

	body, err = json.Marshal(OK(nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"code":200}`, string(body))
}

func TestEnvelopeStatusDefaultsTo500(t *testing.T) {
	t.Parallel()

	env := Envelope{}
	require.Equal(t, http.StatusInternalServerError, env.Status())
	body, err := json.Marshal(env)
	require.NoError(t, err)
	require.JSONEq(t, `{"code":500}`, string(body))
}

func TestParseKeepsRawDocument(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"mode":"source","url":"https://example.com","wait":1500,"proxy":{"host":"127.0.0.1","port":8080}}`)
	d, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, ModeSource, d.Mode)
	require.Equal(t, "https://example.com", d.URL)
	require.NotNil(t, d.Proxy)
	require.Equal(t, 8080, d.Proxy.Port)

	var extra struct {
		Wait int `json:"wait"`
	}
	require.NoError(t, d.Bind(&extra))
	require.Equal(t, 1500, extra.Wait)

	raw[2] = 'X'
	require.JSONEq(t, `{"mode":"source","url":"https://example.com","wait":1500,"proxy":{"host":"127.0.0.1","port":8080}}`, string(d.Raw()))
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"mode":`))
	require.Error(t, err)

	require.Error(t, Descriptor{}.Bind(&struct{}{}))
}

func TestModeKnown(t *testing.T) {
	t.Parallel()

	for _, m := range Modes {
		require.True(t, m.Known(), string(m))
	}
	require.False(t, Mode("bogus").Known())
	require.False(t, Mode("").Known())
}

func TestProxyServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		proxy *Proxy
		want  string
	}{
		{"nil", nil, ""},
		{"host only", &Proxy{Host: "10.0.0.1"}, "http://10.0.0.1"},
		{"host and port", &Proxy{Host: "10.0.0.1", Port: 3128}, "http://10.0.0.1:3128"},
		{"socks scheme", &Proxy{Host: "socks5://proxy.local", Port: 1080}, "socks5://proxy.local:1080"},
		{"ipv6", &Proxy{Host: "::1", Port: 8080}, "http://[::1]:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.proxy.Server())
		})
	}

	require.False(t, (&Proxy{Host: "h"}).HasCredentials())
	require.True(t, (&Proxy{Host: "h", Username: "u"}).HasCredentials())
}
