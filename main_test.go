package main

import "testing"

func TestWebhookURL(t *testing.T) {
	got, err := webhookURL("https://bot.example.com/telegram/webhook", "abc")
	if err != nil {
		t.Fatalf("webhookURL: %v", err)
	}
	if got != "https://bot.example.com/telegram/webhook?secret=abc" {
		t.Fatalf("unexpected url %s", got)
	}
	got, err = webhookURL("https://bot.example.com/telegram/webhook", "")
	if err != nil || got != "https://bot.example.com/telegram/webhook" {
		t.Fatalf("unexpected url %s err %v", got, err)
	}
	if _, err := webhookURL("not a url", ""); err == nil {
		t.Fatalf("expected error for relative url")
	}
}
