package analyzer

// ContentWeights are the point values of the content score. Positive values
// are awards, negative values penalties; the score is clamped to 0..100.
type ContentWeights struct {
	Base               int `mapstructure:"base" json:"base"`
	Words1000          int `mapstructure:"words_1000" json:"words_1000"`
	Words500           int `mapstructure:"words_500" json:"words_500"`
	Words300           int `mapstructure:"words_300" json:"words_300"`
	TitleIdeal         int `mapstructure:"title_ideal" json:"title_ideal"`
	TitlePresent       int `mapstructure:"title_present" json:"title_present"`
	MetaIdeal          int `mapstructure:"meta_ideal" json:"meta_ideal"`
	H1                 int `mapstructure:"h1" json:"h1"`
	ReadabilityGood    int `mapstructure:"readability_good" json:"readability_good"`
	ReadabilityFair    int `mapstructure:"readability_fair" json:"readability_fair"`
	AltText            int `mapstructure:"alt_text" json:"alt_text"`
	InternalLinksMany  int `mapstructure:"internal_links_many" json:"internal_links_many"`
	InternalLinksSome  int `mapstructure:"internal_links_some" json:"internal_links_some"`
	KeywordEach        int `mapstructure:"keyword_each" json:"keyword_each"`
	KeywordMax         int `mapstructure:"keyword_max" json:"keyword_max"`
	StuffedKeyword     int `mapstructure:"stuffed_keyword" json:"stuffed_keyword"`
	ThinContent        int `mapstructure:"thin_content" json:"thin_content"`
	Stuffing           int `mapstructure:"stuffing" json:"stuffing"`
	MissingSubheadings int `mapstructure:"missing_subheadings" json:"missing_subheadings"`
}

// DefaultContentWeights returns the stock breakpoint values.
func DefaultContentWeights() ContentWeights {
	return ContentWeights{
		Base:               50,
		Words1000:          15,
		Words500:           10,
		Words300:           5,
		TitleIdeal:         10,
		TitlePresent:       5,
		MetaIdeal:          5,
		H1:                 10,
		ReadabilityGood:    10,
		ReadabilityFair:    5,
		AltText:            5,
		InternalLinksMany:  5,
		InternalLinksSome:  2,
		KeywordEach:        2,
		KeywordMax:         10,
		StuffedKeyword:     -5,
		ThinContent:        -15,
		Stuffing:           -10,
		MissingSubheadings: -5,
	}
}
