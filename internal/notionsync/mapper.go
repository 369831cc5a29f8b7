package notionsync

import (
	"math"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the transactions database.
const (
	PropTitle          = "Name"
	PropTransactionID  = "Transaction ID"
	PropType           = "Type"
	PropAmount         = "Amount"
	PropSignedAmount   = "Signed Amount"
	PropCurrency       = "Currency"
	PropCategory       = "Category"
	PropPaymentMethod  = "Payment Method"
	PropPaymentAccount = "Payment Account"
	PropDate           = "Date"
	PropNote           = "Note"
)

// TransactionToNotionProperties converts a record to page properties.
// The title is the category (or the type when uncategorised).
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	typ := domain.NormalizeType(tx.Type)
	currency := tx.Currency
	if currency == "" {
		currency = "USD"
	}

	title := tx.Category
	if title == "" {
		title = string(typ)
	}

	created := notionapi.Date(tx.CreatedAt.UTC())
	props := notionapi.Properties{
		PropTitle: notionapi.TitleProperty{
			Title: richText(title),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		PropType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(typ)},
		},
		PropAmount: notionapi.NumberProperty{
			Number: math.Abs(domain.NormalizeAmount(tx.Amount)),
		},
		PropSignedAmount: notionapi.NumberProperty{
			Number: domain.NormalizeAmount(tx.SignedAmount()),
		},
		PropCurrency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: currency},
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &created},
		},
	}

	if tx.Category != "" {
		props[PropCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category},
		}
	}
	if tx.PaymentMethod != "" {
		props[PropPaymentMethod] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.PaymentMethod},
		}
	}
	if tx.PaymentAccount != "" {
		props[PropPaymentAccount] = notionapi.RichTextProperty{
			RichText: richText(tx.PaymentAccount),
		}
	}
	if tx.Note != "" {
		props[PropNote] = notionapi.RichTextProperty{
			RichText: richText(tx.Note),
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type:      notionapi.ObjectTypeText,
			Text:      &notionapi.Text{Content: content},
			PlainText: content,
		},
	}
}

// extractTransactionID reads the Transaction ID property of a page.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	prop, ok := page.Properties[PropTransactionID]
	if !ok {
		return ""
	}
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case notionapi.RichTextProperty:
		return plainText(p.RichText)
	}
	return ""
}

func plainText(rt []notionapi.RichText) string {
	if len(rt) == 0 {
		return ""
	}
	if rt[0].PlainText != "" {
		return rt[0].PlainText
	}
	if rt[0].Text != nil {
		return rt[0].Text.Content
	}
	return ""
}
