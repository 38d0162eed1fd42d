package bankreturn

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

const dateLayout = "2006-01-02"

// ReturnFile is a parsed bank settlement return file (arquivo de retorno)
type ReturnFile struct {
	Bank        string
	GeneratedAt time.Time
	Invoices    []models.Invoice
	// Rejected holds one message per boleto that could not be read
	Rejected []string
}

// Client fetches return files published by the collecting bank
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new bank return client
func NewClient(url string, log *logrus.Logger) *Client {
	return &Client{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Fetch downloads and parses the latest return file
func (c *Client) Fetch(ctx context.Context) (*ReturnFile, error) {
	body, err := c.download(ctx)
	if err != nil {
		return nil, err
	}

	file, err := Parse(body)
	if err != nil {
		return nil, err
	}
	for _, reason := range file.Rejected {
		c.log.Warnf("Bank return entry rejected: %s", reason)
	}
	c.log.Infof("Retrieved bank return from %s: %d boletos, %d rejected", file.Bank, len(file.Invoices), len(file.Rejected))
	return file, nil
}

func (c *Client) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debugf("Bank return XML response: %d bytes", len(body))
	return body, nil
}

// Parse reads a return file of the form
//
//	<retorno banco="001" gerado="2026-03-15">
//	  <boleto id="10" cliente="1">
//	    <vencimento>2026-03-10</vencimento>
//	    <valor>1500.00</valor>
//	    <pagamento data="2026-03-12" valor="1500.00"/>
//	  </boleto>
//	</retorno>
//
// Boletos missing an id, client, due date or amount are rejected individually.
func Parse(raw []byte) (*ReturnFile, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	root := doc.SelectElement("retorno")
	if root == nil {
		return nil, fmt.Errorf("no retorno element found in XML")
	}

	file := &ReturnFile{Bank: root.SelectAttrValue("banco", "")}
	if generated := root.SelectAttrValue("gerado", ""); generated != "" {
		t, err := time.Parse(dateLayout, generated)
		if err != nil {
			return nil, fmt.Errorf("failed to parse generation date %q: %w", generated, err)
		}
		file.GeneratedAt = t
	}

	for i, el := range root.FindElements("./boleto") {
		inv, err := parseBoleto(el)
		if err != nil {
			file.Rejected = append(file.Rejected, fmt.Sprintf("boleto #%d: %v", i+1, err))
			continue
		}
		file.Invoices = append(file.Invoices, inv)
	}
	return file, nil
}

func parseBoleto(el *etree.Element) (models.Invoice, error) {
	var inv models.Invoice
	var err error

	if inv.ID, err = strconv.ParseInt(el.SelectAttrValue("id", ""), 10, 64); err != nil {
		return models.Invoice{}, fmt.Errorf("invalid id: %w", err)
	}
	if inv.ClientID, err = strconv.ParseInt(el.SelectAttrValue("cliente", ""), 10, 64); err != nil {
		return models.Invoice{}, fmt.Errorf("invalid client for boleto %d: %w", inv.ID, err)
	}

	due := el.SelectElement("vencimento")
	if due == nil {
		return models.Invoice{}, fmt.Errorf("boleto %d has no vencimento", inv.ID)
	}
	if inv.DueDate, err = time.Parse(dateLayout, strings.TrimSpace(due.Text())); err != nil {
		return models.Invoice{}, fmt.Errorf("invalid vencimento for boleto %d: %w", inv.ID, err)
	}

	amount := el.SelectElement("valor")
	if amount == nil {
		return models.Invoice{}, fmt.Errorf("boleto %d has no valor", inv.ID)
	}
	if inv.Amount, err = decimal.NewFromString(strings.TrimSpace(amount.Text())); err != nil {
		return models.Invoice{}, fmt.Errorf("invalid valor for boleto %d: %w", inv.ID, err)
	}

	if payment := el.SelectElement("pagamento"); payment != nil {
		paid, err := time.Parse(dateLayout, payment.SelectAttrValue("data", ""))
		if err != nil {
			return models.Invoice{}, fmt.Errorf("invalid payment date for boleto %d: %w", inv.ID, err)
		}
		inv.PaidDate = &paid
		if raw := payment.SelectAttrValue("valor", ""); raw != "" {
			paidAmount, err := decimal.NewFromString(raw)
			if err != nil {
				return models.Invoice{}, fmt.Errorf("invalid payment amount for boleto %d: %w", inv.ID, err)
			}
			inv.PaidAmount = decimal.NewNullDecimal(paidAmount)
		}
	}
	return inv, nil
}
