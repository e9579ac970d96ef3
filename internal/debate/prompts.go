// internal/debate/prompts.go
package debate

import "fmt"

// openingPrompt frames the topic for an agent's initial position. Both
// agents receive it in side-by-side mode; only agent A in the others.
func openingPrompt(topic string) string {
	return fmt.Sprintf(`You are participating in a structured debate with another AI coding agent.

Topic: %s

Present your position on the topic. State your key arguments clearly
and back them with concrete technical reasoning. Be direct about
tradeoffs and say what you would actually do.`, topic)
}

// reviewPrompt asks agent B to critique agent A's completed answer.
// The answer is embedded verbatim.
func reviewPrompt(topic, position string) string {
	return fmt.Sprintf(`You are participating in a structured debate with another AI coding agent.

Topic: %s

The other agent has taken the following position:

---
%s
---

Critique this position. Point out weaknesses, risks or blind spots,
then propose your own counter-position wherever you disagree. If parts
of it hold up, say so explicitly.`, topic, position)
}

// rebuttalPrompt re-prompts an agent with the opponent's latest full
// answer in rounds after the first.
func rebuttalPrompt(topic, opposing string, round int) string {
	return fmt.Sprintf(`This is round %d of the debate.

Topic: %s

The other agent's latest answer:

---
%s
---

Respond to their strongest points and refine your own position.
Concede where they are right; push back with specifics where they are
not.`, round, topic, opposing)
}

// synthesisPrompt asks agent A to reconcile both final positions into
// a four-section verdict. The headings are fixed so the verdict parser
// can split them.
func synthesisPrompt(topic, agentA, positionA, agentB, positionB string) string {
	return fmt.Sprintf(`The debate is over. You are now writing the synthesis, not arguing.

Topic: %s

Final position from %s:
---
%s
---

Final position from %s:
---
%s
---

Write a structured synthesis with exactly these four sections, in this
order, each starting with the heading shown:

## Points of agreement
## Points of disagreement
## Recommended synthesis
## Open questions

Be concrete, and attribute contested claims to the agent that made
them.`, topic, agentA, positionA, agentB, positionB)
}
