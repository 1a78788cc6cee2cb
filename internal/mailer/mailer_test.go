package mailer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaquimAuto22/faturamento/internal/roster"
	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

type fakeSender struct {
	sent    []*resend.SendEmailRequest
	failAll bool
}

func (f *fakeSender) SendWithContext(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	if f.failAll {
		return nil, errors.New("api down")
	}
	f.sent = append(f.sent, params)
	return &resend.SendEmailResponse{Id: "msg-1"}, nil
}

func newDispatcher(s Sender) *Dispatcher {
	d := New("key", "Faturamento <faturamento@empresa.com.br>", nil)
	d.sender = s
	return d
}

func testDirectory() *roster.Directory {
	return roster.NewDirectory(
		map[taxid.ID]roster.BillingInfo{
			"11222333000181": {Period: "03/2025", Client: "Acme LTDA"},
		},
		map[taxid.ID][]string{
			"11222333000181": {"a@acme.com", "b@acme.com"},
		},
	)
}

func writeBundle(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(paths[i], []byte("%PDF-stub"), 0o644))
	}
	return paths
}

func TestDispatch(t *testing.T) {
	sender := &fakeSender{}
	d := newDispatcher(sender)

	bundles := map[taxid.ID][]string{
		"11222333000181": writeBundle(t, "boleto.pdf", "nf.pdf"),
	}
	sent := d.Dispatch(context.Background(), bundles, testDirectory())

	require.Equal(t, []taxid.ID{"11222333000181"}, sent)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, []string{"a@acme.com", "b@acme.com"}, msg.To)
	assert.Equal(t, "Faturamento Acme LTDA - 03/2025", msg.Subject)
	assert.Contains(t, msg.Text, "competência 03/2025")
	assert.Len(t, msg.Attachments, 2)
	assert.Equal(t, "boleto.pdf", msg.Attachments[0].Filename)
}

func TestDispatchSkipsUnregistered(t *testing.T) {
	sender := &fakeSender{}
	d := newDispatcher(sender)

	bundles := map[taxid.ID][]string{
		"99888777000122": writeBundle(t, "nf.pdf"), // not in roster
	}
	sent := d.Dispatch(context.Background(), bundles, testDirectory())

	assert.Empty(t, sent)
	assert.Empty(t, sender.sent)
}

func TestDispatchSkipsPersonalIDs(t *testing.T) {
	sender := &fakeSender{}
	d := newDispatcher(sender)

	dir := roster.NewDirectory(nil, map[taxid.ID][]string{"12345678909": {"p@x.com"}})
	bundles := map[taxid.ID][]string{
		"12345678909": writeBundle(t, "boleto.pdf"),
	}
	sent := d.Dispatch(context.Background(), bundles, dir)

	assert.Empty(t, sent, "dispatch is CNPJ-only")
}

func TestDispatchSendFailureIsPerClient(t *testing.T) {
	d := newDispatcher(&fakeSender{failAll: true})

	bundles := map[taxid.ID][]string{
		"11222333000181": writeBundle(t, "nf.pdf"),
	}
	sent := d.Dispatch(context.Background(), bundles, testDirectory())

	assert.Empty(t, sent)
}

func TestDispatchMissingAttachment(t *testing.T) {
	sender := &fakeSender{}
	d := newDispatcher(sender)

	bundles := map[taxid.ID][]string{
		"11222333000181": {filepath.Join(t.TempDir(), "gone.pdf")},
	}
	sent := d.Dispatch(context.Background(), bundles, testDirectory())

	assert.Empty(t, sent)
	assert.Empty(t, sender.sent)
}
