package analyzer

import (
	"fmt"
	"strings"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
)

const DefaultSystemPrompt = "You are an expert in analyzing clinical pathways in medicine. Your task is to convert visual clinical pathway information into clear, structured text descriptions. Focus on accurately capturing treatment algorithms, decision points, and clinical workflows."

const flowchartPrompt = `Given a clinical pathway document for a medical condition, convert the information into a clear, structured flowchart. Follow these steps:

1. Identify the key decision points in the clinical pathway:
   - Initial assessment criteria
   - Risk stratification methods
   - First-line treatment options
   - Second-line and subsequent treatments
   - Monitoring and follow-up protocols

2. Map the logical flow between decision points, including:
   - Conditional branches (if/then scenarios)
   - Treatment sequences
   - Assessment checkpoints
   - Progression pathways

3. Include critical clinical parameters:
   - Required testing (genetic, imaging, lab values)
   - Medication specifics and timing
   - Response evaluation criteria
   - Indications for alternative pathways

4. Preserve any special considerations:
   - Patient eligibility criteria
   - Symptom-based decision making
   - Multidisciplinary consultation requirements
   - Clinical trial options

5. For complex pathways, consider dividing the flowchart into logical sections (e.g., "Initial Assessment," "First-line Treatment," "Treatment for Progression") to maintain readability.

Produce the flowchart and include a brief legend explaining any specialized notation used. If you cannot create a sufficiently detailed visual representation, provide a text-based flowchart using indentation, bullets, and directional markers (→, ↓) to show the clinical pathway flow.

When critical details must be condensed, provide a "Clinical Notes" section following the flowchart that explains important nuances that couldn't be fully captured in the visual representation. Mark this section with [SUPPLEMENTAL DETAILS] to indicate these are elements that enhance the main flowchart.

If you believe any important clinical information might be lost or unclear in your representation, flag the specific sections with [DETAIL ALERT] and provide additional clarification.`

const summaryInstruction = "You've analyzed multiple pages of a clinical pathway document. Please provide a comprehensive summary of all the information you've extracted so far, integrating the data from all pages into a single comprehensive paragraph (200-250 words) capturing the essential elements of the pathway, including condition identification, risk stratification, treatment sequencing, monitoring approaches, and progression management. Focus on maintaining clinical accuracy while making the information accessible. Present the information in a logical flow that follows the clinical decision-making process, highlighting key decision points and treatment options without omitting critical details necessary for patient management."

// SummaryPrompt prefixes the cross-page instruction with every page answer
// gathered so far.
func SummaryPrompt(records []pathway.PageRecord) string {
	var sb strings.Builder
	sb.WriteString("Here's a summary of my previous analyses:\n\n")
	for _, r := range records {
		fmt.Fprintf(&sb, "Page %s analysis: %s...\n\n", r.Page, r.Response)
	}
	sb.WriteString(summaryInstruction)
	return sb.String()
}
