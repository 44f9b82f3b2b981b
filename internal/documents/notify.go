package documents

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/mtr-industry/mtr-backoffice/internal/mailer"
	"github.com/mtr-industry/mtr-backoffice/internal/orders"
	"github.com/mtr-industry/mtr-backoffice/internal/pricing"
	"github.com/mtr-industry/mtr-backoffice/internal/requests"
	"github.com/mtr-industry/mtr-backoffice/internal/users"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

// MaxAttachmentBytes bounds the attachments of one notification.
const MaxAttachmentBytes = 15 << 20

func validEmail(s string) string {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.Address
}

func (s *Service) adminTo() string {
	if s.cfg.AdminTo != "" {
		return s.cfg.AdminTo
	}
	return s.Mailer.Address(mailer.AccountAdmin)
}

func (s *Service) link(path string) string {
	if s.cfg.PublicOrigin == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.PublicOrigin, "/") + path
}

// Notify sends the email that follows the rendering of a record. pdf is
// the rendering to attach; order confirmations attach the quote instead.
func (s *Service) Notify(ctx context.Context, kind jobs.DocumentKind, id int64, pdf []byte) error {
	switch kind {
	case jobs.DocumentRequest:
		return s.notifyRequest(ctx, id, pdf)
	case jobs.DocumentQuote:
		return s.notifyQuote(ctx, id, pdf)
	case jobs.DocumentComplaint:
		return s.notifyComplaint(ctx, id, pdf)
	case jobs.DocumentOrder:
		return s.notifyOrder(ctx, id)
	}
	return fmt.Errorf("documents: no notification for %s", kind)
}

// budget adds attachments while their total stays within MaxAttachmentBytes.
type budget struct {
	used    int
	out     []mailer.Attachment
	skipped []string
}

func (b *budget) add(a mailer.Attachment) bool {
	if b.used+len(a.Data) > MaxAttachmentBytes {
		b.skipped = append(b.skipped, a.Name)
		return false
	}
	b.used += len(a.Data)
	b.out = append(b.out, a)
	return true
}

// usableFile reports whether a client file should be forwarded. Office
// lock files and empty parts are dropped.
func usableFile(name string, data []byte) bool {
	name = strings.TrimSpace(name)
	return name != "" && !strings.HasPrefix(name, "~$") && len(data) > 0
}

func (s *Service) notifyRequest(ctx context.Context, id int64, pdf []byte) error {
	req, profile, err := s.Requests.Snapshot(ctx, id)
	if err != nil {
		return err
	}
	files, err := s.Requests.Files(ctx, id)
	if err != nil {
		return err
	}

	b := &budget{}
	b.add(mailer.Attachment{Name: fmt.Sprintf("demande-%s-%s.pdf", req.Kind, req.Number), ContentType: "application/pdf", Data: pdf})
	var listed []fileLine
	for _, f := range files {
		if !usableFile(f.Name, f.Data) {
			continue
		}
		if b.add(mailer.Attachment{Name: f.Name, ContentType: f.ContentType, Data: f.Data}) {
			listed = append(listed, fileLine{Name: f.Name, Size: humanSize(int64(len(f.Data)))})
		}
	}
	if len(b.skipped) > 0 {
		s.Logger.Warn("request attachments over budget",
			slog.String("numero", req.Number), slog.Any("skipped", b.skipped))
	}

	name := profile.DisplayName()
	view := requestView{
		page:   newPage(name + " - " + req.Number),
		Kind:   requestKindLabel(req.Kind),
		Number: req.Number,
		Date:   mailDate(req.CreatedAt),
		Client: clientView{
			Name:        orDash(name),
			Email:       orDash(profile.Email),
			Phone:       orDash(profile.Phone),
			Address:     orDash(profile.Address),
			AccountType: orDash(string(profile.AccountType)),
		},
		Spec:         specLines(requests.SpecValues(req.Spec)),
		Requirements: req.Requirements,
		Remarks:      req.Remarks,
		Files:        listed,
		Skipped:      b.skipped,
	}
	html, text, err := requestEmail.execute(view)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, mailer.AccountAdmin, mailer.Message{
		To:          []string{s.adminTo()},
		ReplyTo:     validEmail(profile.Email),
		Subject:     view.Title,
		Text:        text,
		HTML:        html,
		Attachments: b.out,
	})
}

func (s *Service) notifyQuote(ctx context.Context, id int64, pdf []byte) error {
	q, err := s.Quotes.Load(ctx, id)
	if err != nil {
		return err
	}
	to := validEmail(q.Client.Email)
	if to == "" {
		s.Logger.Warn("quote client has no email", slog.String("numero", q.Number))
		return nil
	}
	view := quoteView{
		page:           newPage("Votre devis " + q.Number),
		Number:         q.Number,
		ClientName:     strings.TrimSpace(q.Client.Name),
		RequestNumbers: q.RequestNumbers,
		Total:          pricing.Money(pricing.Round3(q.Totals().GrandTotal)),
		Lines:          len(q.Items),
		Link:           s.link("/quotes/" + q.Number + "/pdf"),
	}
	html, text, err := quoteEmail.execute(view)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, mailer.AccountCommercial, mailer.Message{
		To:      []string{to},
		Subject: view.Title,
		Text:    text,
		HTML:    html,
		Attachments: []mailer.Attachment{
			{Name: "devis-" + q.Number + ".pdf", ContentType: "application/pdf", Data: pdf},
		},
	})
}

func (s *Service) notifyComplaint(ctx context.Context, id int64, pdf []byte) error {
	c, profile, err := s.Complaints.Snapshot(ctx, id)
	if err != nil {
		return err
	}
	files, err := s.Complaints.Files(ctx, id)
	if err != nil {
		return err
	}
	b := &budget{}
	b.add(mailer.Attachment{Name: "reclamation-" + c.Number + ".pdf", ContentType: "application/pdf", Data: pdf})
	for _, f := range files {
		if usableFile(f.Name, f.Data) {
			b.add(mailer.Attachment{Name: f.Name, ContentType: f.ContentType, Data: f.Data})
		}
	}

	name := clientName(profile)
	replyTo := validEmail(profile.Email)
	view := complaintView{
		page:        newPage("Réclamation " + c.Number + " – " + name),
		Number:      c.Number,
		ClientName:  name,
		Email:       orDash(replyTo),
		DocKind:     c.Order.Kind.Label(),
		DocNumber:   c.Order.Number,
		Nature:      c.Nature,
		Expectation: c.Expectation,
		Description: c.Description,
	}
	html, text, err := complaintEmail.execute(view)
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, mailer.AccountCommercial, mailer.Message{
		To:          []string{s.Mailer.Address(mailer.AccountCommercial)},
		ReplyTo:     replyTo,
		Subject:     view.Title,
		Text:        text,
		HTML:        html,
		Attachments: b.out,
	})
}

func (s *Service) notifyOrder(ctx context.Context, id int64) error {
	o, err := s.Orders.Load(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != orders.StatusConfirmed {
		s.Logger.Info("order no longer confirmed", slog.Int64("order_id", id), slog.String("status", string(o.Status)))
		return nil
	}
	profile, err := s.Profiles.Get(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("documents: client of order %d: %w", id, err)
	}
	pdf, err := s.QuotePDF(ctx, o.QuoteID)
	if err != nil {
		return err
	}

	clientEmail := validEmail(profile.Email)
	view := orderView{
		page:           newPage("Commande confirmée – Devis " + o.QuoteNumber),
		ClientName:     clientName(profile),
		Email:          orDash(clientEmail),
		Phone:          orDash(profile.Phone),
		QuoteNumber:    o.QuoteNumber,
		RequestNumbers: o.RequestNumbers,
		Note:           o.Note,
		Link:           s.link("/quotes/" + o.QuoteNumber + "/pdf"),
	}
	html, text, err := orderEmail.execute(view)
	if err != nil {
		return err
	}
	msg := mailer.Message{
		To:      []string{s.adminTo()},
		ReplyTo: clientEmail,
		Subject: view.Title,
		Text:    text,
		HTML:    html,
		Attachments: []mailer.Attachment{
			{Name: "devis-" + o.QuoteNumber + ".pdf", ContentType: "application/pdf", Data: pdf},
		},
	}
	if clientEmail != "" {
		msg.Cc = []string{clientEmail}
	}
	return s.Mailer.Send(ctx, mailer.AccountAdmin, msg)
}

func clientName(p users.Profile) string {
	if name := p.DisplayName(); name != "" {
		return name
	}
	return "Client"
}
