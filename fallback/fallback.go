// Package fallback answers common animal health questions from a fixed table
// when no model can be reached.
package fallback

import (
	"slices"
	"strings"
	"unicode"

	"github.com/pashuarogyam/vetai/utils/array"
)

type species struct {
	name  string
	words []string
}

// Checked in order; the first species mentioned wins. Words match whole
// words only, with or without a trailing "s".
var speciesTable = []species{
	{"cow", []string{"cow", "cattle", "bull", "calf", "calves", "bovine"}},
	{"dog", []string{"dog", "puppy", "puppies", "canine"}},
	{"cat", []string{"cat", "kitten", "feline"}},
	{"sheep", []string{"sheep", "lamb", "ewe", "ram"}},
}

type rule struct {
	// Empty matches any input.
	species string
	words   []string
	text    string
}

var rules = []rule{
	{"cow", []string{"fever"}, `**Fever in cattle**
Normal temperature: 101.5-103.5°F (38.6-39.7°C).
- Move the animal to shade and offer cool, fresh water
- Watch for laboured breathing
- Keep track of appetite and milk yield
- Electrolyte solutions can help
- Call a veterinarian if the fever is above 104°F or lasts more than 24 hours`},
	{"cow", []string{"mastitis"}, `**Mastitis in cows**
Signs: hot or swollen quarters, clots or watery milk.
- Milk out the affected quarters every 2-3 hours
- Use warm compresses before milking
- Strip affected quarters completely
- Antibiotics need a veterinary prescription
- Watch for fever or loss of appetite`},
	{"cow", []string{"lameness", "limp"}, `**Lameness in cattle**
Common causes: hoof lesions, lodged stones, injuries.
- Lift and inspect each hoof for cuts or stones
- Keep the animal on soft, dry bedding
- Restrict movement
- See a veterinarian if there is no improvement in 24-48 hours`},
	{"dog", []string{"fever"}, `**Fever in dogs**
Normal temperature: 101-102.5°F (38.3-39.2°C).
- Keep water available and encourage drinking
- Keep the dog somewhere cool
- Damp towels on the paws and belly help cooling
- Watch for lethargy and loss of appetite
- A fever above 104°F is an emergency`},
	{"dog", []string{"diarrhea"}, `**Diarrhea in dogs**
- Withhold food for 12-24 hours but never water
- Restart with a bland diet such as boiled rice and chicken
- Offer small amounts of water often
- See a veterinarian for blood in the stool, dehydration or diarrhea lasting over 2 days`},
	{"cat", []string{"fever"}, `**Fever in cats**
Normal temperature: 100.5-102.5°F (38.1-39.2°C).
- Keep the cat somewhere quiet and cool
- Encourage drinking; wet food adds fluids
- Watch breathing and appetite
- A fever above 104°F or marked lethargy is an emergency`},
	{"cat", []string{"vomit", "throw up"}, `**Vomiting in cats**
- Withhold food for 12 hours but keep offering small amounts of water
- Reintroduce a bland diet gradually
- Blood, repeated retching or dehydration are emergencies
- See a veterinarian if vomiting lasts more than 24 hours`},
	{"sheep", []string{"fever"}, `**Fever in sheep**
Normal temperature: 102-104°F (38.9-40°C).
- Provide shade, ventilation and fresh water
- Check for breathing problems
- Separate the animal from the flock if an infection is suspected
- Above 105°F or difficult breathing is an emergency`},
	{"sheep", []string{"limp", "foot rot"}, `**Foot problems in sheep**
Common causes: foot rot, stones, injuries.
- Inspect the hooves for lesions or a foul smell
- Trim overgrown hooves if you are experienced
- Keep the flock on clean, dry ground
- Foot rot needs antibiotic treatment from a veterinarian`},

	{"", []string{"emergency", "urgent"}, `**Emergency signs: contact a veterinarian immediately**
- Open-mouth breathing or gasping
- Bleeding that does not stop with pressure
- Unable to stand or walk
- Fever above 104°F (40°C)
- Seizures
- Severe pain, restlessness or a rigid posture
- Bloated abdomen, especially in ruminants
- Any injury to the eyes`},
	{"", []string{"fever"}, `**Fever**
Signs: lethargy, warm ears, shivering.
- Keep the animal in a cool, well ventilated place
- Make sure fresh water is always available
- Offer light, easily digestible feed
- Measure the temperature if you can
- Call a veterinarian if the fever is above 104°F or lasts more than 24 hours`},
	{"", []string{"diarrhea", "loose stool"}, `**Diarrhea**
- Keep the animal hydrated with water and electrolytes
- Withhold feed for 12-24 hours, never water
- Return gradually to a bland diet
- Blood, severe dehydration or fever are warning signs
- See a veterinarian if it lasts more than 2 days or the animal weakens`},
	{"", []string{"cough"}, `**Cough**
- Check for laboured breathing
- Separate the animal from the rest of the herd or flock
- Make sure housing is well ventilated
- Consult a veterinarian`},
	{"", []string{"lameness", "limp"}, `**Lameness**
- Rest the animal and limit its movement
- Check the legs and feet for injuries or swelling
- A veterinary examination is needed`},
	{"", []string{"mastitis"}, `**Mastitis**
- Milk the affected animal frequently
- Apply warm compresses to the udder
- Antibiotic treatment may be needed; consult a veterinarian`},
	{"", []string{"vaccination", "vaccine"}, `**Vaccination**
- Follow the local vaccination schedule
- Keep vaccines refrigerated until use
- Record the date of every dose
- Consult a veterinarian for the right schedule`},
}

const generalGuidance = `**Animal health guidance**
AI answers are not available right now, but here is some general guidance.

**Emergency signs: contact a veterinarian immediately**
- Difficulty breathing, severe bleeding, unable to stand
- High fever (above 104°F/40°C), seizures, severe pain

**General care**
- Check appetite, behaviour and vital signs daily
- Provide clean water and suitable feed
- Keep housing clean and dry
- Separate sick animals to prevent spread

**Common first aid**
- Fever: cool water, shade, electrolytes
- Minor cuts: clean, disinfect, watch the healing
- Digestive upsets: withhold feed briefly, keep water available

Always consult a qualified veterinarian for diagnosis and treatment.`

// Respond returns canned guidance for the input. It never returns an empty
// string and the same input always produces the same text.
func Respond(input string) string {
	lowered := strings.ToLower(input)
	mentioned := mentionedSpecies(lowered)

	for _, r := range rules {
		if r.species != "" && r.species != mentioned {
			continue
		}
		if containsAny(lowered, r.words) {
			return r.text
		}
	}
	return generalGuidance
}

func mentionedSpecies(lowered string) string {
	tokens := map[string]bool{}
	for _, token := range strings.FieldsFunc(lowered, func(r rune) bool { return !unicode.IsLetter(r) }) {
		tokens[token] = true
	}
	mentioned, _ := array.Find(speciesTable, func(s species) bool {
		return slices.ContainsFunc(s.words, func(word string) bool {
			return tokens[word] || tokens[word+"s"]
		})
	})
	return mentioned.name
}

// containsAny matches symptom stems and phrases anywhere, so "limp" covers
// "limping".

func containsAny(lowered string, words []string) bool {
	for _, word := range words {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}
