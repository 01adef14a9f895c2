package pcsc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ebfe/scard"
	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/apdu-script/pkg/tlv"
)

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    Protocol
		wantErr bool
	}{
		{"*", ProtocolAny, false},
		{"T=0", ProtocolT0, false},
		{"t=1", ProtocolT1, false},
		{"DIRECT", ProtocolDirect, false},
		{"T=2", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProtocol(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProtocol(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProtocol(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if !tt.wantErr {
				if back, _ := ParseProtocol(got.String()); back != got {
					t.Errorf("String() %q does not parse back", got.String())
				}
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	ctx := &fakeContext{readers: []string{"ACS ACR1255U-J1 0", "ACS ACR1255U-J1 1"}}
	reg := NewRegistry(ctx)

	if _, err := reg.Resolve(""); !errors.Is(err, ErrNoReader) {
		t.Fatalf("Resolve before Refresh: expected ErrNoReader, got %v", err)
	}

	names, err := reg.Refresh()
	if err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if diff := cmp.Diff(ctx.readers, names); diff != "" {
		t.Errorf("Refresh mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		selector string
		want     string
		wantErr  bool
	}{
		{"", "ACS ACR1255U-J1 0", false},
		{"ACS ACR1255U-J1 1", "ACS ACR1255U-J1 1", false},
		{"1", "ACS ACR1255U-J1 1", false},
		{"2", "", true},
		{"-1", "", true},
		{"Other reader", "", true},
	}

	for _, tt := range tests {
		got, err := reg.Resolve(tt.selector)
		if (err != nil) != tt.wantErr {
			t.Errorf("Resolve(%q) error = %v, wantErr %v", tt.selector, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.selector, got, tt.want)
		}
	}

	if !reg.Contains("ACS ACR1255U-J1 0") || reg.Contains("Other reader") {
		t.Error("Contains() mismatch")
	}
}

func TestRegistry_NoReaders(t *testing.T) {
	ctx := &fakeContext{listErr: fmt.Errorf("failed to list readers: %w", scard.ErrNoReadersAvailable)}
	reg := NewRegistry(ctx)

	names, err := reg.Refresh()
	if err != nil || len(names) != 0 {
		t.Fatalf("Refresh() = %v, %v; want empty list", names, err)
	}

	ctx.listErr = errors.New("service stopped")
	if _, err := reg.Refresh(); err == nil {
		t.Fatal("expected list error")
	}
}

func TestConnect(t *testing.T) {
	atr := tlv.Hex("3B8F8001804F0CA000000306030001000000006A")

	t.Run("T=1 negotiated", func(t *testing.T) {
		card := &fakeCard{status: &scard.CardStatus{Atr: atr, ActiveProtocol: scard.ProtocolT1}}
		ctx := &fakeContext{card: card}

		conn, err := Connect(ctx, "R0", ProtocolAny)
		if err != nil {
			t.Fatalf("Connect() error: %v", err)
		}
		if conn.Protocol != ProtocolT1 {
			t.Errorf("Protocol = %v, want T=1", conn.Protocol)
		}
		if diff := cmp.Diff(atr, conn.ATR); diff != "" {
			t.Errorf("ATR mismatch (-want +got):\n%s", diff)
		}
		want := connectCall{"R0", scard.ShareShared, scard.ProtocolT0 | scard.ProtocolT1}
		if ctx.connects[0] != want {
			t.Errorf("connect call = %+v, want %+v", ctx.connects[0], want)
		}

		if err := conn.Close(); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
		if len(card.disconnected) != 1 || card.disconnected[0] != scard.LeaveCard {
			t.Errorf("disconnect = %v, want LeaveCard", card.disconnected)
		}
	})

	t.Run("Direct without card", func(t *testing.T) {
		card := &fakeCard{statusErr: scard.ErrNoSmartcard}
		ctx := &fakeContext{card: card}

		conn, err := Connect(ctx, "R0", ProtocolDirect)
		if err != nil {
			t.Fatalf("Connect() error: %v", err)
		}
		if conn.Protocol != ProtocolDirect || conn.ATR != nil {
			t.Errorf("unexpected connection: %+v", conn)
		}
		if ctx.connects[0].mode != scard.ShareDirect {
			t.Errorf("mode = %v, want ShareDirect", ctx.connects[0].mode)
		}
		if _, err := conn.APDUChannel(DefaultTransmitOptions()); !errors.Is(err, ErrNoAPDUChannel) {
			t.Errorf("expected ErrNoAPDUChannel, got %v", err)
		}
	})

	t.Run("Status failure disconnects", func(t *testing.T) {
		card := &fakeCard{statusErr: errors.New("removed")}
		ctx := &fakeContext{card: card}

		if _, err := Connect(ctx, "R0", ProtocolT0); err == nil {
			t.Fatal("expected error")
		}
		if len(card.disconnected) != 1 {
			t.Error("card not disconnected after status failure")
		}
	})

	t.Run("Connect failure", func(t *testing.T) {
		ctx := &fakeContext{connectErr: scard.ErrNoSmartcard}
		if _, err := Connect(ctx, "R0", ProtocolAny); !errors.Is(err, scard.ErrNoSmartcard) {
			t.Fatalf("expected ErrNoSmartcard, got %v", err)
		}
	})
}

func TestConnection_APDUChannel(t *testing.T) {
	tests := []struct {
		name      string
		protocol  scard.Protocol
		opts      TransmitOptions
		command   string
		responses []string
		wantSent  []string
		want      string
	}{
		{
			name:      "T=0 get response",
			protocol:  scard.ProtocolT0,
			opts:      DefaultTransmitOptions(),
			command:   "00A4040007A0000000031010",
			responses: []string{"6102", "6F009000"},
			wantSent:  []string{"00A4040007A0000000031010", "00C0000002"},
			want:      "6F009000",
		},
		{
			name:      "T=0 disabled",
			protocol:  scard.ProtocolT0,
			opts:      TransmitOptions{},
			command:   "00B2010C00",
			responses: []string{"6C10"},
			wantSent:  []string{"00B2010C00"},
			want:      "6C10",
		},
		{
			name:      "T=1 strip Le",
			protocol:  scard.ProtocolT1,
			opts:      TransmitOptions{T1GetResponse: true, T1StripLe: true},
			command:   "00A4040002A00000",
			responses: []string{"9000"},
			wantSent:  []string{"00A4040002A000"},
			want:      "9000",
		},
		{
			name:      "T=1 keeps 6CXX",
			protocol:  scard.ProtocolT1,
			opts:      DefaultTransmitOptions(),
			command:   "00B2010C00",
			responses: []string{"6C10"},
			wantSent:  []string{"00B2010C00"},
			want:      "6C10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := &fakeCard{status: &scard.CardStatus{ActiveProtocol: tt.protocol}}
			for _, r := range tt.responses {
				card.responses = append(card.responses, tlv.Hex(r))
			}

			conn, err := Connect(&fakeContext{card: card}, "R0", ProtocolAny)
			if err != nil {
				t.Fatalf("Connect() error: %v", err)
			}
			ch, err := conn.APDUChannel(tt.opts)
			if err != nil {
				t.Fatalf("APDUChannel() error: %v", err)
			}

			got, err := ch.Transmit(tlv.Hex(tt.command))
			if err != nil {
				t.Fatalf("Transmit() error: %v", err)
			}
			if diff := cmp.Diff(tlv.Hex(tt.want), got); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}

			var sent []string
			for _, s := range card.sent {
				sent = append(sent, fmt.Sprintf("%X", s))
			}
			if diff := cmp.Diff(tt.wantSent, sent); diff != "" {
				t.Errorf("sent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConnection_ControlChannel(t *testing.T) {
	card := &fakeCard{controlReply: tlv.Hex("E100000001"), statusErr: scard.ErrNoSmartcard}
	conn, err := Connect(&fakeContext{card: card}, "R0", ProtocolDirect)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	got, err := conn.ControlChannel(3500).Transmit(tlv.Hex("E000001800"))
	if err != nil {
		t.Fatalf("Transmit() error: %v", err)
	}
	if diff := cmp.Diff(tlv.Hex("E100000001"), got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if len(card.ioctls) != 1 || card.ioctls[0] != ControlCode(3500) {
		t.Errorf("ioctls = %X, want %X", card.ioctls, ControlCode(3500))
	}
}
