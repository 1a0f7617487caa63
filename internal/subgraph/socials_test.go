package subgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"launchpad-terminal/internal/domain"
)

func TestClassifySocials(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want domain.Socials
	}{
		{
			name: "Happy Path",
			raw:  []string{"https://twitter.com/a", "t.me/a", "discord.gg/a"},
			want: domain.Socials{Twitter: "https://twitter.com/a", Telegram: "https://t.me/a", Discord: "https://discord.gg/a"},
		},
		{
			name: "Remainder becomes website",
			raw:  []string{"example.org", "x.com/a"},
			want: domain.Socials{Twitter: "https://x.com/a", Website: "https://example.org"},
		},
		{
			name: "Each string used once",
			raw:  []string{"x.com/telegram"},
			want: domain.Socials{Twitter: "https://x.com/telegram"},
		},
		{
			name: "Empty",
			raw:  []string{"", "  "},
			want: domain.Socials{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySocials(tc.raw...))
		})
	}
}

func TestResolveURI(t *testing.T) {
	gw := "https://gw.example/ipfs"
	assert.Equal(t, "https://gw.example/ipfs/Qm123", ResolveURI("ipfs://Qm123", gw))
	assert.Equal(t, "https://gw.example/ipfs/Qm123", ResolveURI("ipfs://ipfs/Qm123", gw))
	assert.Equal(t, "https://gw.example/ipfs/Qm123", ResolveURI("Qm123", gw))
	assert.Equal(t, "http://host/meta.json", ResolveURI("http://host/meta.json", gw))
	assert.Empty(t, ResolveURI(" ", gw))
}
