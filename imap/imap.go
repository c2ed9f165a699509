package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/imapfetch/model"
	"github.com/dhcgn/imapfetch/runner"
	"github.com/dhcgn/imapfetch/state"
)

// Transport selects how the connection is secured.
type Transport int

const (
	PlainTransport Transport = iota
	TLSTransport
	StartTLSTransport
)

func (t Transport) String() string {
	switch t {
	case TLSTransport:
		return "tls"
	case StartTLSTransport:
		return "starttls"
	default:
		return "plain"
	}
}

// DefaultPort returns the IANA port for the transport.
func (t Transport) DefaultPort() int {
	if t == TLSTransport {
		return 993
	}
	return 143
}

type Options struct {
	Host               string
	Port               int
	Transport          Transport
	InsecureSkipVerify bool
	DialTimeout        time.Duration
}

// Client is a go-imap session satisfying runner.Client.
type Client struct {
	client *imapclient.Client
	logger *slog.Logger
}

var _ runner.Client = (*Client)(nil)

// Connector returns a runner.Connector dialing with opts.
func Connector(opts Options, logger *slog.Logger) runner.Connector {
	return func(ctx context.Context) (runner.Client, error) {
		return Dial(ctx, opts, logger)
	}
}

// Dial connects to the server. The transport variant is chosen here; the
// returned Client is not authenticated yet.
func Dial(ctx context.Context, opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		opts.Port = opts.Transport.DefaultPort()
	}
	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial imap %s: %w", model.ErrIO, address, err)
	}

	options := &imapclient.Options{}
	if opts.Transport != PlainTransport {
		options.TLSConfig = &tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}
	}

	var client *imapclient.Client
	switch opts.Transport {
	case TLSTransport:
		client = imapclient.New(tls.Client(conn, options.TLSConfig), options)
	case StartTLSTransport:
		client, err = imapclient.NewStartTLS(conn, options)
	default:
		client = imapclient.New(conn, options)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: starttls %s: %w", model.ErrIO, address, err)
	}

	if err := client.WaitGreeting(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: greeting from %s: %w", model.ErrIO, address, err)
	}

	if logger != nil {
		logger.Debug("imap connection established", "address", address, "transport", opts.Transport)
	}
	return &Client{client: client, logger: logger}, nil
}

func (c *Client) Login(user, secret string) error {
	if err := c.client.Login(user, secret).Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Type == imapv2.StatusResponseTypeNo {
			return fmt.Errorf("%w: %w", model.ErrCredentialsRejected, err)
		}
		return classify("login", err)
	}
	return nil
}

func (c *Client) List(ref, pattern string) ([]model.Mailbox, error) {
	list, err := c.client.List(ref, pattern, nil).Collect()
	if err != nil {
		return nil, classify("list", err)
	}

	mailboxes := make([]model.Mailbox, 0, len(list))
	for _, data := range list {
		mb := model.Mailbox{Name: data.Mailbox, Delimiter: data.Delim}
		for _, attr := range data.Attrs {
			if attr == imapv2.MailboxAttrNoSelect || attr == imapv2.MailboxAttrNonExistent {
				mb.NoSelect = true
			}
		}
		mailboxes = append(mailboxes, mb)
	}
	return mailboxes, nil
}

func (c *Client) Examine(mailbox string) (model.MailboxStatus, error) {
	data, err := c.client.Select(mailbox, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return model.MailboxStatus{}, classify("examine "+mailbox, err)
	}
	return model.MailboxStatus{Messages: data.NumMessages, UIDValidity: data.UIDValidity}, nil
}

// messageIDSection asks for the raw Message-ID header so that the remote ID
// is read by the same code that indexes archived entries. The envelope form
// is normalised by the client library and may differ or be empty.
var messageIDSection = &imapv2.FetchItemBodySection{
	Specifier:    imapv2.PartSpecifierHeader,
	HeaderFields: []string{"Message-ID"},
	Peek:         true,
}

func (c *Client) FetchEnvelopes(start, end uint32) ([]model.Envelope, error) {
	seqSet := imapv2.SeqSet{{Start: start, Stop: end}}
	opts := &imapv2.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{messageIDSection},
	}

	msgs, err := c.client.Fetch(seqSet, opts).Collect()
	if err != nil {
		return nil, classify(fmt.Sprintf("fetch %d:%d", start, end), err)
	}

	envelopes := make([]model.Envelope, 0, len(msgs))
	for _, buf := range msgs {
		envelopes = append(envelopes, envelope(buf.UID, buf.Envelope, buf.FindBodySection(messageIDSection)))
	}
	return envelopes, nil
}

func (c *Client) FetchBody(uid uint32) (model.MessageRecord, error) {
	section := &imapv2.FetchItemBodySection{Peek: true}
	opts := &imapv2.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	}

	msgs, err := c.client.Fetch(imapv2.UIDSetNum(imapv2.UID(uid)), opts).Collect()
	if err != nil {
		return model.MessageRecord{}, classify(fmt.Sprintf("fetch uid %d", uid), err)
	}
	if len(msgs) == 0 {
		return model.MessageRecord{}, fmt.Errorf("%w: message uid %d not returned", model.ErrProtocol, uid)
	}

	body := msgs[0].FindBodySection(section)
	if body == nil {
		return model.MessageRecord{}, fmt.Errorf("%w: message uid %d has no body", model.ErrProtocol, uid)
	}
	return model.MessageRecord{
		Envelope: envelope(msgs[0].UID, msgs[0].Envelope, body),
		Body:     body,
	}, nil
}

func (c *Client) Logout() error {
	err := c.client.Logout().Wait()
	if cerr := c.client.Close(); cerr != nil && c.logger != nil {
		c.logger.Debug("imap connection closed", "err", cerr)
	}
	if err != nil {
		return classify("logout", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// classify maps server status responses to protocol errors and everything
// else to I/O errors.
func classify(op string, err error) error {
	var respErr *imapv2.Error
	if errors.As(err, &respErr) {
		return fmt.Errorf("%w: %s: %w", model.ErrProtocol, op, err)
	}
	return fmt.Errorf("%w: %s: %w", model.ErrIO, op, err)
}

// envelope builds the scan projection of one message. header is any buffer
// starting with the message header; its Message-ID wins over the envelope's.
func envelope(uid imapv2.UID, env *imapv2.Envelope, header []byte) model.Envelope {
	out := model.Envelope{UID: uint32(uid)}
	if env != nil {
		out.Date = env.Date
		out.MessageID = headerMessageID(env.MessageID)
		if len(env.From) > 0 {
			out.From = env.From[0].Addr()
		}
	}
	if id, err := state.MessageID(header); err == nil && len(id) > 0 {
		out.MessageID = string(id)
	}
	return out
}

// headerMessageID returns the Message-ID the way it appears in the message
// header, so it compares equal to the archived value.
func headerMessageID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "<") {
		return id
	}
	return "<" + id + ">"
}
