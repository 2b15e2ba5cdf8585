// Package notify e-mails the daily collection report to the cooperative's
// staff.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"koperasi/internal/core"
	"koperasi/internal/dashboard"
	"koperasi/internal/services"
)

// Report is the end-of-day picture: who still has to pay and what came in.
type Report struct {
	Date    time.Time
	Figures dashboard.Figures
	Due     []services.CustomerRow
	Paid    int
	NewLoan int
}

// BuildReport groups customer rows by collection status.
func BuildReport(date time.Time, figures dashboard.Figures, rows []services.CustomerRow) Report {
	r := Report{Date: date, Figures: figures}
	for _, row := range rows {
		switch row.Status {
		case services.StatusDue:
			r.Due = append(r.Due, row)
		case services.StatusPaid:
			r.Paid++
		case services.StatusNewLoan:
			r.NewLoan++
		}
	}
	return r
}

func (r Report) Subject() string {
	return fmt.Sprintf("Laporan Penagihan %s", core.FormatDate(r.Date))
}

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"rupiah": core.FormatRupiah,
}).Parse(`<h2>Laporan Penagihan {{.Date}}</h2>
<p>Pemasukan hari ini: {{rupiah .Figures.IncomeToday}}<br>
Target harian: {{rupiah .Figures.DailyTarget}}<br>
Kas tersedia: {{rupiah .Figures.CashOnHand}}</p>
<p>Sudah bayar: {{.Paid}} &middot; Pinjaman baru: {{.NewLoan}} &middot; Belum bayar: {{len .Due}}</p>
{{if .Due}}<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Nasabah</th><th>Alamat</th><th>Sisa Tagihan</th><th>Angsuran</th></tr>
{{range .Due}}<tr><td>{{.Customer.Name}}</td><td>{{.Customer.Address}}</td><td>{{rupiah .TotalRemaining}}</td><td>{{.InstallmentText}}</td></tr>
{{end}}</table>{{else}}<p>Semua nasabah sudah membayar.</p>{{end}}
`))

// HTML renders the report body.
func (r Report) HTML() (string, error) {
	view := struct {
		Report
		Date string
	}{r, core.FormatDate(r.Date)}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// Sender delivers prepared messages; *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type Mailer struct {
	sender Sender
	from   string
	to     []string
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return NewMailerWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, cfg.To)
}

func NewMailerWithSender(s Sender, from string, to []string) *Mailer {
	return &Mailer{sender: s, from: from, to: to}
}

// SendReport renders and sends r to every configured recipient.
func (m *Mailer) SendReport(r Report) error {
	if len(m.to) == 0 {
		return fmt.Errorf("send report: no recipients configured")
	}
	body, err := r.HTML()
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to...)
	msg.SetHeader("Subject", r.Subject())
	msg.SetBody("text/html", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}
