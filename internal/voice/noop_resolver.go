package voice

// NoopResolver returns empty names. Useful in tests or when REST lookups
// are unwanted.
type NoopResolver struct{}

func (NoopResolver) UserName(string) string           { return "" }
func (NoopResolver) MemberName(string, string) string { return "" }
func (NoopResolver) GuildName(string) string          { return "" }
func (NoopResolver) ChannelName(string) string        { return "" }
