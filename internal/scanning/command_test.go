package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"ping", ModePing},
		{"quick", ModeQuick},
		{"full-tcp", ModeFullTCP},
		{"fulltcp", ModeFullTCP},
		{"service-detect", ModeServiceDetect},
		{"svcdetect", ModeServiceDetect},
		{"os-detect", ModeOSDetect},
		{"os", ModeOSDetect},
		{"script-scan", ModeScriptScan},
		{"nse", ModeScriptScan},
		{"default", ModeDefault},
		{" QUICK ", ModeQuick},
		{"", ModeDefault},
		{"stealth", ModeDefault},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMode(tt.input))
		})
	}
}

func TestModes(t *testing.T) {
	modes := Modes()
	assert.Len(t, modes, 7)
	for _, m := range modes {
		_, ok := modeTable[m]
		assert.True(t, ok, "mode %s has no table entry", m)
		assert.Equal(t, m, ParseMode(m.String()))
	}
}

func TestBuildArgs(t *testing.T) {
	targets := []string{"10.0.0.1", "example.com"}

	tests := []struct {
		name       string
		mode       Mode
		privileged bool
		want       []string
	}{
		{
			name: "ping puts -sn before base args",
			mode: ModePing,
			want: []string{"-sn", "-oX", "-", "-n", "10.0.0.1", "example.com"},
		},
		{
			name: "quick",
			mode: ModeQuick,
			want: []string{"-oX", "-", "-n", "--top-ports", "200", "-T4", "10.0.0.1", "example.com"},
		},
		{
			name: "full tcp",
			mode: ModeFullTCP,
			want: []string{"-oX", "-", "-n", "-p-", "-T4", "10.0.0.1", "example.com"},
		},
		{
			name:       "service detect privileged",
			mode:       ModeServiceDetect,
			privileged: true,
			want:       []string{"-oX", "-", "-n", "-sS", "-sV", "-T4", "10.0.0.1", "example.com"},
		},
		{
			name: "service detect unprivileged",
			mode: ModeServiceDetect,
			want: []string{"-oX", "-", "-n", "-sT", "-sV", "-T4", "10.0.0.1", "example.com"},
		},
		{
			name:       "os detect privileged",
			mode:       ModeOSDetect,
			privileged: true,
			want: []string{"-oX", "-", "-n", "-O", "-sS", "-sV", "--osscan-guess", "--traceroute", "-T4",
				"10.0.0.1", "example.com"},
		},
		{
			name: "os detect unprivileged",
			mode: ModeOSDetect,
			want: []string{"-oX", "-", "-n", "-O", "-sT", "-sV", "--osscan-guess", "--traceroute", "-T4",
				"10.0.0.1", "example.com"},
		},
		{
			name: "script scan",
			mode: ModeScriptScan,
			want: []string{"-oX", "-", "-n", "-sC", "-sV", "-T4", "10.0.0.1", "example.com"},
		},
		{
			name: "default",
			mode: ModeDefault,
			want: []string{"-oX", "-", "-n", "-sV", "-T4", "10.0.0.1", "example.com"},
		},
		{
			name: "unknown mode falls back to default",
			mode: Mode("bogus"),
			want: []string{"-oX", "-", "-n", "-sV", "-T4", "10.0.0.1", "example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildArgs(tt.mode, tt.privileged, targets))
		})
	}
}

func TestBuildArgsDoesNotAliasTable(t *testing.T) {
	first := BuildArgs(ModeQuick, false, []string{"a"})
	first[3] = "mutated"

	second := BuildArgs(ModeQuick, false, []string{"a"})
	assert.Equal(t, "--top-ports", second[3])
	assert.Equal(t, []string{"-oX", "-", "-n"}, baseArgs)
}

func TestPrivilegeIndependentModes(t *testing.T) {
	for _, m := range []Mode{ModePing, ModeQuick, ModeFullTCP, ModeScriptScan, ModeDefault} {
		assert.Equal(t, BuildArgs(m, true, nil), BuildArgs(m, false, nil), "mode %s", m)
	}
}
