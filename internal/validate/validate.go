// Package validate holds the intake checklist applied to a tender before
// any document work starts. Messages are operator-facing and end up in the
// errors table and Telegram alerts, hence the Russian wording.
package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/manvelegoyan072/bord-application/internal/model"
)

// allowedFormats are the document extensions accepted at intake.
var allowedFormats = map[string]bool{
	"pdf":  true,
	"docx": true,
	"zip":  true,
	"7z":   true,
	"xls":  true,
	"xlsx": true,
}

var (
	innRe   = regexp.MustCompile(`^(\d{10}|\d{12})$`)
	kppRe   = regexp.MustCompile(`^\d{9}$`)
	emailRe = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)
	phoneRe = regexp.MustCompile(`^\+?\d{1,3}\s?\(?\d{3}\)?[\s-]?\d{3}[\s-]?\d{2}[\s-]?\d{2}$`)
)

func organizerString(organizer map[string]any, key string) (string, bool) {
	v, ok := organizer[key]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

// Tender checks required fields and identifier formats. An empty result
// means the tender passed.
func Tender(t *model.Tender) []string {
	var errs []string

	if t.ExternalID == "" {
		errs = append(errs, "Отсутствует ID заявки")
	}
	if t.NotificationNumber == "" {
		errs = append(errs, "Отсутствует номер закупки")
	}
	if t.Title == "" {
		errs = append(errs, "Отсутствует название")
	}
	if t.PublicationDate == nil {
		errs = append(errs, "Отсутствует дата публикации")
	}
	if t.ApplicationDeadline == nil {
		errs = append(errs, "Отсутствует дедлайн подачи")
	}

	organizer := t.Organizer
	if organizer == nil {
		organizer = map[string]any{}
	}
	if fullName, _ := organizerString(organizer, "fullName"); fullName == "" {
		errs = append(errs, "Отсутствует полное название организатора")
	}
	if inn, _ := organizerString(organizer, "inn"); !innRe.MatchString(inn) {
		errs = append(errs, "Некорректный ИНН организатора")
	}
	if kpp, present := organizerString(organizer, "kpp"); present && !kppRe.MatchString(kpp) {
		errs = append(errs, "Некорректный КПП организатора")
	}
	if email, present := organizerString(organizer, "email"); present && !emailRe.MatchString(email) {
		errs = append(errs, "Некорректный email организатора")
	}
	if phone, present := organizerString(organizer, "phone"); present && !phoneRe.MatchString(phone) {
		errs = append(errs, "Некорректный телефон организатора")
	}

	return errs
}

// Documents checks that at least one document is declared and that every
// document has a supported file name and a resolvable URL.
func Documents(docs []model.Document) []string {
	var errs []string

	if len(docs) == 0 {
		errs = append(errs, "Нет документов")
	}

	for _, doc := range docs {
		if doc.FileName == "" {
			errs = append(errs, fmt.Sprintf("Документ без имени: %s", doc.URL))
		} else if !validFormat(doc.FileName) {
			errs = append(errs, fmt.Sprintf("Неподдерживаемый формат: %s", doc.FileName))
		}
		if !validURL(doc.URL) {
			errs = append(errs, fmt.Sprintf("Некорректный URL: %s", doc.URL))
		}
	}

	return errs
}

func validFormat(fileName string) bool {
	parts := strings.Split(fileName, ".")
	ext := strings.ToLower(parts[len(parts)-1])
	return allowedFormats[ext]
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}
