package imap

import (
	"context"
	"errors"
	"fmt"
	"testing"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/imapfetch/model"
)

func TestHeaderMessageID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc@example.com", "<abc@example.com>"},
		{"<abc@example.com>", "<abc@example.com>"},
		{"  abc@example.com ", "<abc@example.com>"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, headerMessageID(tt.in))
		})
	}
}

func TestTransport(t *testing.T) {
	assert.Equal(t, 143, PlainTransport.DefaultPort())
	assert.Equal(t, 993, TLSTransport.DefaultPort())
	assert.Equal(t, 143, StartTLSTransport.DefaultPort())

	assert.Equal(t, "plain", PlainTransport.String())
	assert.Equal(t, "tls", TLSTransport.String())
	assert.Equal(t, "starttls", StartTLSTransport.String())
}

func TestDial_EmptyHost(t *testing.T) {
	_, err := Dial(context.Background(), Options{}, nil)
	require.Error(t, err)
}

func TestDial_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, Options{Host: "127.0.0.1", Port: 1}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrIO)
}

func TestClassify(t *testing.T) {
	status := &imapv2.Error{Type: imapv2.StatusResponseTypeNo, Text: "no such mailbox"}
	err := classify("examine Foo", status)
	assert.ErrorIs(t, err, model.ErrProtocol)
	assert.ErrorIs(t, err, status)

	err = classify("fetch", fmt.Errorf("wrapped: %w", errors.New("connection reset")))
	assert.ErrorIs(t, err, model.ErrIO)
	assert.NotErrorIs(t, err, model.ErrProtocol)
}

func TestEnvelope_MessageIDSource(t *testing.T) {
	tests := []struct {
		name   string
		env    *imapv2.Envelope
		header string
		want   string
	}{
		{name: "header wins", env: &imapv2.Envelope{MessageID: "a@b.example"}, header: "Message-ID: <a@b.example> (comment)\r\n\r\n", want: "<a@b.example> (comment)"},
		{name: "header without at sign", env: &imapv2.Envelope{}, header: "Message-Id: <1234.abcdef>\r\n\r\n", want: "<1234.abcdef>"},
		{name: "envelope fallback", env: &imapv2.Envelope{MessageID: "a@b.example"}, header: "\r\n", want: "<a@b.example>"},
		{name: "empty header value", env: &imapv2.Envelope{MessageID: "a@b.example"}, header: "Message-ID:\r\n\r\n", want: "<a@b.example>"},
		{name: "nothing", header: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := envelope(7, tt.env, []byte(tt.header))
			assert.Equal(t, uint32(7), got.UID)
			assert.Equal(t, tt.want, got.MessageID)
		})
	}
}
