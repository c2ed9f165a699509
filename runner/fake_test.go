package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/dhcgn/imapfetch/model"
)

type fakeMessage struct {
	uid       uint32
	messageID string
	body      string
}

type fakeBatch struct {
	start, end uint32
}

// fakeClient is an in-memory IMAP session.
type fakeClient struct {
	secret    string
	loginErr  error
	delimiter rune
	listErr   error
	mailboxes map[string][]fakeMessage
	order     []string
	noSelect  map[string]bool
	bodyErr   map[uint32]error
	logoutErr error

	selected  string
	logins    []string
	batches   map[string][]fakeBatch
	fetched   map[string][]uint32
	logouts   int
	closes    int
	connected int
}

func newFakeClient(secret string) *fakeClient {
	return &fakeClient{
		secret:    secret,
		delimiter: '/',
		mailboxes: make(map[string][]fakeMessage),
		noSelect:  make(map[string]bool),
		bodyErr:   make(map[uint32]error),
		batches:   make(map[string][]fakeBatch),
		fetched:   make(map[string][]uint32),
	}
}

func (f *fakeClient) addMailbox(name string, msgs ...fakeMessage) {
	if _, ok := f.mailboxes[name]; !ok {
		f.order = append(f.order, name)
	}
	f.mailboxes[name] = append(f.mailboxes[name], msgs...)
}

func (f *fakeClient) connector() Connector {
	return func(context.Context) (Client, error) {
		f.connected++
		return f, nil
	}
}

func (f *fakeClient) Login(user, secret string) error {
	f.logins = append(f.logins, secret)
	if f.loginErr != nil {
		return f.loginErr
	}
	if secret != f.secret {
		return fmt.Errorf("%w: LOGIN failed", model.ErrCredentialsRejected)
	}
	return nil
}

func (f *fakeClient) List(ref, pattern string) ([]model.Mailbox, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if pattern == "" {
		return []model.Mailbox{{Name: "", Delimiter: f.delimiter}}, nil
	}
	var out []model.Mailbox
	for _, name := range f.order {
		out = append(out, model.Mailbox{Name: name, Delimiter: f.delimiter, NoSelect: f.noSelect[name]})
	}
	return out, nil
}

func (f *fakeClient) Examine(mailbox string) (model.MailboxStatus, error) {
	msgs, ok := f.mailboxes[mailbox]
	if !ok {
		return model.MailboxStatus{}, fmt.Errorf("%w: no such mailbox %s", model.ErrProtocol, mailbox)
	}
	f.selected = mailbox
	return model.MailboxStatus{Messages: uint32(len(msgs)), UIDValidity: 1}, nil
}

func (f *fakeClient) FetchEnvelopes(start, end uint32) ([]model.Envelope, error) {
	f.batches[f.selected] = append(f.batches[f.selected], fakeBatch{start, end})
	msgs := f.mailboxes[f.selected]
	if start < 1 || int(end) > len(msgs) || start > end {
		return nil, fmt.Errorf("%w: bad range %d:%d", model.ErrProtocol, start, end)
	}
	var out []model.Envelope
	for _, m := range msgs[start-1 : end] {
		out = append(out, model.Envelope{UID: m.uid, MessageID: m.messageID})
	}
	return out, nil
}

func (f *fakeClient) FetchBody(uid uint32) (model.MessageRecord, error) {
	if err := f.bodyErr[uid]; err != nil {
		return model.MessageRecord{}, err
	}
	f.fetched[f.selected] = append(f.fetched[f.selected], uid)
	for _, m := range f.mailboxes[f.selected] {
		if m.uid == uid {
			return model.MessageRecord{
				Envelope: model.Envelope{UID: m.uid, MessageID: m.messageID},
				Body:     []byte(m.body),
			}, nil
		}
	}
	return model.MessageRecord{}, errors.New("uid not found")
}

func (f *fakeClient) Logout() error {
	f.logouts++
	return f.logoutErr
}

func (f *fakeClient) Close() error {
	f.closes++
	return nil
}

func msg(uid uint32, messageID string) fakeMessage {
	body := "Subject: message " + fmt.Sprint(uid) + "\r\n\r\nbody\r\n"
	if messageID != "" {
		body = "Message-ID: " + messageID + "\r\n" + body
	}
	return fakeMessage{uid: uid, messageID: messageID, body: body}
}
