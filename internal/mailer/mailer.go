// Package mailer sends one billing email per identified client bundle.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/resend/resend-go/v2"

	"github.com/JoaquimAuto22/faturamento/internal/roster"
	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

const bodyTemplate = `Prezados (as),

Anexo o faturamento da competência %s. Por favor confirmar o recebimento.

Atenciosamente,
Sistema Automático de envio de Faturamento`

// Sender is the slice of the Resend API the dispatcher uses; stubbed in tests.
type Sender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type Dispatcher struct {
	sender Sender
	from   string
	logger *slog.Logger
}

func New(apiKey, from string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: resend.NewClient(apiKey).Emails, from: from, logger: logger}
}

// Dispatch emails each bundle whose identifier has registered recipients.
// Bundles without roster data are skipped with a warning; send failures are
// per-client, never fatal. Returns the identifiers actually dispatched.
func (d *Dispatcher) Dispatch(ctx context.Context, bundles map[taxid.ID][]string, dir *roster.Directory) []taxid.ID {
	ids := make([]taxid.ID, 0, len(bundles))
	for id := range bundles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var sent []taxid.ID
	for _, id := range ids {
		recipients := dir.Recipients(id)
		if !id.IsOrg() || len(recipients) == 0 {
			d.logger.Warn("no recipients registered, skipping", "tax_id", id)
			continue
		}
		billing, _ := dir.Billing(id)

		params, err := d.buildMessage(id, bundles[id], recipients, billing)
		if err != nil {
			d.logger.Error("message build failed", "tax_id", id, "error", err)
			continue
		}
		if _, err := d.sender.SendWithContext(ctx, params); err != nil {
			d.logger.Error("email send failed", "tax_id", id, "error", err)
			continue
		}
		d.logger.Info("email sent", "tax_id", id, "client", billing.Client, "recipients", len(recipients))
		sent = append(sent, id)
	}

	d.logger.Info("dispatch finished", "sent", len(sent), "bundles", len(bundles))
	return sent
}

func (d *Dispatcher) buildMessage(id taxid.ID, files, recipients []string, billing roster.BillingInfo) (*resend.SendEmailRequest, error) {
	attachments := make([]*resend.Attachment, 0, len(files))
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", f, err)
		}
		attachments = append(attachments, &resend.Attachment{
			Filename: filepath.Base(f),
			Content:  content,
		})
	}
	if len(attachments) == 0 {
		return nil, fmt.Errorf("bundle %s has no files", id)
	}

	return &resend.SendEmailRequest{
		From:        d.from,
		To:          recipients,
		Subject:     fmt.Sprintf("Faturamento %s - %s", billing.Client, billing.Period),
		Text:        fmt.Sprintf(bodyTemplate, billing.Period),
		Attachments: attachments,
	}, nil
}
