package search

import "testing"

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		name       string
		rec        MessageRecord
		variations []string
		want       bool
	}{
		{
			name:       "subject match",
			rec:        MessageRecord{Subject: "Your Decathlon order has shipped"},
			variations: []string{"decathlon"},
			want:       true,
		},
		{
			name:       "case insensitive both ways",
			rec:        MessageRecord{Snippet: "gracias por su compra en DECATHLON"},
			variations: []string{"Decathlon"},
			want:       true,
		},
		{
			name:       "from address match",
			rec:        MessageRecord{From: "noreply@decathlon.example"},
			variations: []string{"decathlon"},
			want:       true,
		},
		{
			name: "attachment filename match",
			rec: MessageRecord{
				Subject:     "Documento adjunto",
				Attachments: []AttachmentRef{{Filename: "factura_decathlon_2024.pdf"}},
			},
			variations: []string{"decathlon"},
			want:       true,
		},
		{
			name:       "no variation present",
			rec:        MessageRecord{Subject: "Weekly newsletter", Snippet: "deals of the week"},
			variations: []string{"decathlon", "DECATHLON"},
			want:       false,
		},
		{
			name:       "second variation matches",
			rec:        MessageRecord{Snippet: "Ref ES5112345678 adjunta"},
			variations: []string{"es51-12345678", "ES5112345678"},
			want:       true,
		},
		{
			name:       "empty variations reject everything",
			rec:        MessageRecord{Subject: "anything"},
			variations: nil,
			want:       false,
		},
		{
			name:       "empty record",
			rec:        MessageRecord{},
			variations: []string{"decathlon"},
			want:       false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesAny(&tt.rec, tt.variations); got != tt.want {
				t.Errorf("MatchesAny() = %v, want %v", got, tt.want)
			}
		})
	}
}
