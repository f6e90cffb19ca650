package voice

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// NameResolver provides human-friendly names for ids when available.
type NameResolver interface {
	UserName(userID string) string
	MemberName(guildID, userID string) string
	GuildName(guildID string) string
	ChannelName(channelID string) string
}

type discordResolver struct {
	s *discordgo.Session

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	val    string
	expiry time.Time
}

// NewDiscordResolver resolves names from session state first, then REST,
// caching results for cacheTTL.
func NewDiscordResolver(s *discordgo.Session) NameResolver {
	return &discordResolver{s: s, cache: make(map[string]cacheEntry)}
}

var cacheTTL = 5 * time.Minute

// cached returns the cached value for key or calls fetch and caches a
// non-empty result.
func (d *discordResolver) cached(key string, fetch func() string) string {
	if d.s == nil {
		return ""
	}
	d.mu.Lock()
	if e, ok := d.cache[key]; ok {
		if time.Now().Before(e.expiry) {
			d.mu.Unlock()
			return e.val
		}
		delete(d.cache, key)
	}
	d.mu.Unlock()

	v := fetch()
	if v != "" {
		d.mu.Lock()
		d.cache[key] = cacheEntry{val: v, expiry: time.Now().Add(cacheTTL)}
		d.mu.Unlock()
	}
	return v
}

func (d *discordResolver) UserName(userID string) string {
	if userID == "" {
		return ""
	}
	return d.cached("user:"+userID, func() string {
		if u, err := d.s.User(userID); err == nil && u != nil {
			if u.GlobalName != "" {
				return u.GlobalName
			}
			return u.Username
		}
		return ""
	})
}

// MemberName prefers the guild nickname and falls back to UserName.
func (d *discordResolver) MemberName(guildID, userID string) string {
	if guildID == "" || userID == "" {
		return d.UserName(userID)
	}
	name := d.cached("member:"+guildID+":"+userID, func() string {
		var m *discordgo.Member
		if d.s.State != nil {
			m, _ = d.s.State.Member(guildID, userID)
		}
		if m == nil {
			m, _ = d.s.GuildMember(guildID, userID)
		}
		if m != nil && m.Nick != "" {
			return m.Nick
		}
		return ""
	})
	if name != "" {
		return name
	}
	return d.UserName(userID)
}

func (d *discordResolver) GuildName(guildID string) string {
	if guildID == "" {
		return ""
	}
	return d.cached("guild:"+guildID, func() string {
		if d.s.State != nil {
			if g, err := d.s.State.Guild(guildID); err == nil && g != nil {
				return g.Name
			}
		}
		if g, err := d.s.Guild(guildID); err == nil && g != nil {
			return g.Name
		}
		return ""
	})
}

func (d *discordResolver) ChannelName(channelID string) string {
	if channelID == "" {
		return ""
	}
	return d.cached("channel:"+channelID, func() string {
		if d.s.State != nil {
			if c, err := d.s.State.Channel(channelID); err == nil && c != nil {
				return c.Name
			}
		}
		if c, err := d.s.Channel(channelID); err == nil && c != nil {
			return c.Name
		}
		return ""
	})
}
