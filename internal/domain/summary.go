package domain

// AddOutcome diz o que aconteceu ao gravar uma definição.
type AddOutcome int

const (
	// Added criou um termo novo.
	Added AddOutcome = iota
	// Appended acrescentou uma definição a um termo existente.
	Appended
	// Duplicate encontrou a mesma definição já gravada e não mudou nada.
	Duplicate
)

func (o AddOutcome) String() string {
	switch o {
	case Added:
		return "added"
	case Appended:
		return "appended"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// AddResult é o retorno de uma gravação.
type AddResult struct {
	Outcome     AddOutcome
	Key         string
	Term        string
	Definition  string
	Definitions int
	Kind        RecordKind
}

// TermListing é uma linha da listagem geral: o termo e as bases onde aparece.
type TermListing struct {
	Term    string
	Sources []string
}

// ChannelSummary resume a base de um canal.
type ChannelSummary struct {
	ID          int64
	Name        string
	Terms       int
	Definitions int
}

// Stats soma todas as bases.
type Stats struct {
	Channels    int
	Terms       int
	Definitions int
	Notes       int
}

// AvgDefinitions é a média de definições por termo.
func (s Stats) AvgDefinitions() float64 {
	if s.Terms == 0 {
		return 0
	}
	return float64(s.Definitions) / float64(s.Terms)
}
