package discovery

import (
	"reflect"
	"testing"
)

func TestEndpoint_Address(t *testing.T) {
	tests := []struct {
		name     string
		ep       *Endpoint
		wantAddr string
		wantSpec string
	}{
		{
			name:     "IPv4",
			ep:       &Endpoint{IP: "192.168.4.16", Port: 14550},
			wantAddr: "192.168.4.16:14550",
			wantSpec: "udp:192.168.4.16:14550",
		},
		{
			name:     "IPv6",
			ep:       &Endpoint{IP: "fe80::1", Port: 14550},
			wantAddr: "[fe80::1]:14550",
			wantSpec: "udp:[fe80::1]:14550",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ep.Address(); got != tt.wantAddr {
				t.Errorf("Address() = %q, want %q", got, tt.wantAddr)
			}
			if got := tt.ep.LinkSpec(); got != tt.wantSpec {
				t.Errorf("LinkSpec() = %q, want %q", got, tt.wantSpec)
			}
		})
	}
}

func TestEndpoint_String(t *testing.T) {
	ep := &Endpoint{Instance: "gcs", Hostname: "ground-1.local.", IP: "10.0.0.1", Port: 14550}
	want := "gcs (ground-1.local.) at 10.0.0.1:14550"
	if got := ep.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestEndpoint_SystemID(t *testing.T) {
	tests := []struct {
		meta   map[string]string
		want   uint8
		wantOK bool
	}{
		{meta: map[string]string{"sysid": "1"}, want: 1, wantOK: true},
		{meta: map[string]string{"sysid": "256"}},
		{meta: map[string]string{"sysid": "abc"}},
		{meta: nil},
	}

	for _, tt := range tests {
		ep := &Endpoint{Metadata: tt.meta}
		got, ok := ep.SystemID()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("SystemID() with %v = %d, %v; want %d, %v", tt.meta, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRegistration_Text(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
		want []string
	}{
		{
			name: "with version",
			reg:  Registration{SystemID: 255, ComponentID: 190, Version: "1.0.0"},
			want: []string{"sysid=255", "compid=190", "version=1.0.0"},
		},
		{
			name: "without version",
			reg:  Registration{SystemID: 1, ComponentID: 1},
			want: []string{"sysid=1", "compid=1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reg.Text(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Text() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdvertise_Validation(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
	}{
		{name: "missing instance", reg: Registration{Port: 14550}},
		{name: "zero port", reg: Registration{Instance: "gcs"}},
		{name: "port too large", reg: Registration{Instance: "gcs", Port: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Advertise(tt.reg); err == nil {
				t.Error("Advertise() error = nil, want error")
			}
		})
	}
}
