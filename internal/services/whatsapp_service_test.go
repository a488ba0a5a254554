package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testWhatsAppService(baseURL string) *WhatsAppService {
	return &WhatsAppService{
		idInstance:       "100",
		apiTokenInstance: "token",
		baseURL:          baseURL,
		httpClient:       &http.Client{Timeout: 2 * time.Second},
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"с плюсом", "+77071234567", "77071234567", false},
		{"без плюса", "923001234567", "923001234567", false},
		{"пустой", "", "", true},
		{"с буквами", "+7707abc4567", "", true},
		{"слишком короткий", "+1234567", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizePhone(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizePhone(%q) err = %v, ожидалась ошибка: %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("normalizePhone(%q) = %q, ожидалось %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCheckWhatsAppNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PhoneNumber string `json:"phoneNumber"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"existsWhatsapp": req.PhoneNumber == "77071234567",
		})
	}))
	defer srv.Close()

	w := testWhatsAppService(srv.URL)
	ctx := context.Background()

	if err := w.CheckWhatsAppNumber(ctx, "+77071234567"); err != nil {
		t.Errorf("зарегистрированный номер отклонен: %v", err)
	}

	err := w.CheckWhatsAppNumber(ctx, "+77079999999")
	if !errors.Is(err, ErrNotOnWhatsApp) {
		t.Errorf("незарегистрированный номер прошел проверку: %v", err)
	}

	if err := w.CheckWhatsAppNumber(ctx, "не номер"); err == nil {
		t.Error("некорректный номер прошел проверку")
	}
}

// Без настроенного Green API проверка номера пропускается
func TestCheckWhatsAppNumberSkippedWithoutCredentials(t *testing.T) {
	w := &WhatsAppService{httpClient: &http.Client{Timeout: time.Second}}

	if err := w.CheckWhatsAppNumber(context.Background(), "+77071234567"); err != nil {
		t.Errorf("проверка без настроек должна пропускаться: %v", err)
	}
}
