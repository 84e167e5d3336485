// Package analysis summarizes persisted prompts and responses.
package analysis

import (
	"sort"
	"strings"

	"github.com/pennh4i/tentacool/internal/model"
)

// TopN is the length of the best and worst rankings.
const TopN = 5

// PromptRate is the jailbreak rate of one prompt across its responses.
type PromptRate struct {
	Prompt     model.StoredPrompt `json:"prompt"`
	Rate       float64            `json:"jailbreak_rate"`
	Jailbroken int                `json:"jailbroken"`
	Total      int                `json:"total"`
}

// LLMRate is the jailbreak rate of one model across its responses.
type LLMRate struct {
	LLM        string  `json:"llm"`
	Rate       float64 `json:"jailbreak_rate"`
	Jailbroken int     `json:"jailbroken"`
	Total      int     `json:"total"`
}

// Stats is the summary shown by the stats command.
type Stats struct {
	TotalPrompts       int          `json:"total_prompts"`
	TotalResponses     int          `json:"total_responses"`
	Jailbroken         int          `json:"jailbroken"`
	NotJailbroken      int          `json:"not_jailbroken"`
	OverallRate        float64      `json:"overall_jailbreak_rate"`
	MostJailbreaking   []PromptRate `json:"best_prompts"`
	LeastJailbreaking  []PromptRate `json:"worst_prompts"`
	MostJailbrokenLLM  []LLMRate    `json:"best_llms"`
	LeastJailbrokenLLM []LLMRate    `json:"worst_llms"`
}

// Compute reduces prompts and responses to Stats. Rates are percentages.
// Prompts without responses are left out of the prompt rankings. Ties keep
// the input order.
func Compute(prompts []model.StoredPrompt, responses []model.StoredResponse) Stats {
	st := Stats{
		TotalPrompts:   len(prompts),
		TotalResponses: len(responses),
	}
	for _, r := range responses {
		if r.Jailbroken {
			st.Jailbroken++
		} else {
			st.NotJailbroken++
		}
	}
	st.OverallRate = rate(st.Jailbroken, st.TotalResponses)

	byPrompt := make(map[model.ID][2]int, len(prompts))
	for _, r := range responses {
		c := byPrompt[r.PromptID]
		c[1]++
		if r.Jailbroken {
			c[0]++
		}
		byPrompt[r.PromptID] = c
	}
	var promptRates []PromptRate
	for _, p := range prompts {
		c, ok := byPrompt[p.ID]
		if !ok || c[1] == 0 {
			continue
		}
		promptRates = append(promptRates, PromptRate{Prompt: p, Rate: rate(c[0], c[1]), Jailbroken: c[0], Total: c[1]})
	}

	var llmRates []LLMRate
	llmIndex := make(map[string]int)
	for _, r := range responses {
		i, ok := llmIndex[r.LLM]
		if !ok {
			i = len(llmRates)
			llmIndex[r.LLM] = i
			llmRates = append(llmRates, LLMRate{LLM: r.LLM})
		}
		llmRates[i].Total++
		if r.Jailbroken {
			llmRates[i].Jailbroken++
		}
	}
	for i := range llmRates {
		llmRates[i].Rate = rate(llmRates[i].Jailbroken, llmRates[i].Total)
	}

	// Worst is taken from the descending order re-sorted ascending, so
	// equal rates keep their descending-pass order.
	sort.SliceStable(promptRates, func(i, j int) bool { return promptRates[i].Rate > promptRates[j].Rate })
	st.MostJailbreaking = head(promptRates)
	asc := append([]PromptRate(nil), promptRates...)
	sort.SliceStable(asc, func(i, j int) bool { return asc[i].Rate < asc[j].Rate })
	st.LeastJailbreaking = head(asc)

	sort.SliceStable(llmRates, func(i, j int) bool { return llmRates[i].Rate > llmRates[j].Rate })
	st.MostJailbrokenLLM = head(llmRates)
	llmAsc := append([]LLMRate(nil), llmRates...)
	sort.SliceStable(llmAsc, func(i, j int) bool { return llmAsc[i].Rate < llmAsc[j].Rate })
	st.LeastJailbrokenLLM = head(llmAsc)

	return st
}

// Search keeps prompts whose text or note contains text, ignoring case.
// An empty text keeps everything.
func Search(prompts []model.StoredPrompt, text string) []model.StoredPrompt {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return prompts
	}
	var out []model.StoredPrompt
	for _, p := range prompts {
		if strings.Contains(strings.ToLower(p.Text), needle) || strings.Contains(strings.ToLower(p.Note), needle) {
			out = append(out, p)
		}
	}
	return out
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func head[T any](s []T) []T {
	if len(s) > TopN {
		s = s[:TopN]
	}
	return append([]T(nil), s...)
}
