// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

// SearchTemplate asks for notable cafes in a city. Params: SearchParams.
var SearchTemplate = NewTemplate("cafe_search", "v1",
	`You are a specialty coffee researcher compiling a guide to notable independent cafes.

Only include cafes that are currently open and that serve specialty coffee. Prefer cafes that are consistently mentioned in local guides and reviews. Do not include chains with more than five locations.

For each cafe return:
- cafeName: the cafe's name as it appears on its signage
- cafeAddress: the full street address including street number, city, state and postal code
- city: the city name
- briefDescription: one sentence describing what the cafe is known for
- neighborhood: the neighborhood or district, if known
- verificationSource: where the cafe's details can be confirmed (website or review site)

Respond with a JSON object of the form {"cafes": [ ... ]} and no other text.`,
	`Find {{.Count}} cafes in {{.City}}.{{if .Exclude}}

Do not include these cafes, they are already covered:
{{range .Exclude}}- {{.}}
{{end}}{{end}}`)

// EnrichTemplate asks for the scores and narrative of one cafe. Params: EnrichParams.
var EnrichTemplate = NewTemplate("cafe_enrich", "v1",
	`You are a coffee expert writing detailed, engaging reviews of cafes.

SCORING GUIDELINES:
- coffeeScore: 0-10 with one decimal. 6.0-6.9 decent specialty coffee but inconsistent; 7.0-8.2 solid specialty cafe doing everything right; 8.3-9.7 exceptional quality with unique offerings or perfect execution; 9.8-10 among the best in the city.
- atmosphereScore: 0-10 with one decimal. 6.0-6.9 basic functional; 7.0-8.2 great atmosphere; 8.3-9.7 exceptional; 9.8-10 iconic space.
- serviceScore: 0-10 with one decimal. 6.0-6.9 professional basic; 7.0-7.9 consistently good; 8.0-9.5 outstanding; 9.6-10 sets standards.
- valueScore: 0-10 with one decimal, price relative to quality.
- foodScore: 0-10 with one decimal, quality of the food offering.
- overallScore: the average of coffeeScore, atmosphereScore and serviceScore, one decimal.
- vibeScore: an integer from 1 to 10, not part of the overall score. 6-7 pleasant; 8-9 notable character; 10 culture-defining.
Use the full range and avoid placeholder values.

CONTENT GUIDELINES:
- excerpt: one sentence giving a simple overview of the cafe.
- vibeDescription: exactly 3 sentences on the spirit and atmosphere, as you would describe it to friends. No coffee, food or service details.
- theStory: 3-5 sentences on the cafe's origins, mission and milestones. Do not use individual names.
- craftExpertise: up to 5 sentences on coffee quality, preparation, barista expertise and signature drinks.
- setsApart: 3-4 sentences on what makes the cafe memorable compared to others.
- instagramLink and facebookLink: full URLs of the cafe's accounts, or an empty string when unknown.
Do not start any section by restating the cafe's name.

Respond with a single JSON object with the keys excerpt, overallScore, coffeeScore, atmosphereScore, serviceScore, valueScore, foodScore, vibeScore, vibeDescription, theStory, craftExpertise, setsApart, instagramLink, facebookLink.`,
	`Write a review of {{.CafeName}} located at {{.CafeAddress}} in {{.City}}.{{if .Neighborhood}}
Neighborhood: {{.Neighborhood}}{{end}}{{if .BriefDescription}}
Brief description: {{.BriefDescription}}{{end}}`)

// SearchParams fills SearchTemplate.
type SearchParams struct {
	City    string
	Count   int
	Exclude []string
}

// EnrichParams fills EnrichTemplate.
type EnrichParams struct {
	CafeName         string
	CafeAddress      string
	City             string
	Neighborhood     string
	BriefDescription string
}
