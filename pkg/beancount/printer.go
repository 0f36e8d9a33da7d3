package beancount

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// amountColumn is the column at which posting amounts are right-aligned.
const amountColumn = 60

// FormatEntry formats a directive as Beancount text.
func FormatEntry(entry Directive) string {
	switch e := entry.(type) {
	case *Transaction:
		return FormatTransaction(e)
	case *Open:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%s open %s", e.Date.Format(DateLayout), e.Account))
		if len(e.Currencies) > 0 {
			sb.WriteString(" ")
			sb.WriteString(strings.Join(e.Currencies, ","))
		}
		sb.WriteString("\n")
		writeMeta(&sb, e.Meta, "  ")
		return sb.String()
	case *Close:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%s close %s\n", e.Date.Format(DateLayout), e.Account))
		writeMeta(&sb, e.Meta, "  ")
		return sb.String()
	case *Note:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%s note %s %q\n", e.Date.Format(DateLayout), e.Account, e.Comment))
		writeMeta(&sb, e.Meta, "  ")
		return sb.String()
	default:
		return fmt.Sprintf("; unsupported directive %T\n", entry)
	}
}

// FormatTransaction formats a Beancount transaction as a string.
func FormatTransaction(txn *Transaction) string {
	var sb strings.Builder

	// Transaction header
	sb.WriteString(txn.Date.Format(DateLayout))
	flag := txn.Flag
	if flag == "" {
		flag = "*"
	}
	sb.WriteString(" ")
	sb.WriteString(flag)
	if txn.Payee != "" {
		sb.WriteString(fmt.Sprintf(" %q", txn.Payee))
	}
	sb.WriteString(fmt.Sprintf(" %q", txn.Narration))
	for _, tag := range txn.Tags {
		sb.WriteString(" #")
		sb.WriteString(tag)
	}
	for _, link := range txn.Links {
		sb.WriteString(" ^")
		sb.WriteString(link)
	}
	sb.WriteString("\n")
	writeMeta(&sb, txn.Meta, "  ")

	// Postings
	for _, posting := range txn.Postings {
		sb.WriteString("  ")
		head := posting.Account
		if posting.Flag != "" {
			head = posting.Flag + " " + head
		}
		sb.WriteString(head)

		// Right-align amount (typical Beancount style)
		number := posting.Units.Number.String()
		spaces := amountColumn - len(head) - len(number)
		if spaces < 2 {
			spaces = 2
		}
		sb.WriteString(strings.Repeat(" ", spaces))
		sb.WriteString(number)
		sb.WriteString(" ")
		sb.WriteString(posting.Units.Currency)

		if posting.Cost != nil {
			sb.WriteString(" {")
			sb.WriteString(posting.Cost.Number.String())
			sb.WriteString(" ")
			sb.WriteString(posting.Cost.Currency)
			if !posting.Cost.Date.IsZero() {
				sb.WriteString(", ")
				sb.WriteString(posting.Cost.Date.Format(DateLayout))
			}
			if posting.Cost.Label != "" {
				sb.WriteString(fmt.Sprintf(", %q", posting.Cost.Label))
			}
			sb.WriteString("}")
		}
		if posting.Price != nil {
			sb.WriteString(" @ ")
			sb.WriteString(posting.Price.String())
		}
		sb.WriteString("\n")
		writeMeta(&sb, posting.Meta, "    ")
	}

	return sb.String()
}

// PrintEntries writes directives to w, separated by blank lines.
func PrintEntries(w io.Writer, entries []Directive) error {
	for i, entry := range entries {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return fmt.Errorf("failed to write entry separator: %w", err)
			}
		}
		if _, err := io.WriteString(w, FormatEntry(entry)); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	return nil
}

func writeMeta(sb *strings.Builder, meta map[string]string, indent string) {
	if len(meta) == 0 {
		return
	}
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		sb.WriteString(fmt.Sprintf("%s%s: %q\n", indent, key, meta[key]))
	}
}
