// Package pokedex maps species numbers to display names and types.
package pokedex

import "strconv"

type Entry struct {
	Number int
	Name   string
	Types  []string
}

// Lookup returns the entry for number, or false when unknown.
func Lookup(number int) (Entry, bool) {
	if number < 1 || number > len(entries) {
		return Entry{}, false
	}
	return entries[number-1], true
}

// Name returns the species name, or "#<number>" when unknown.
func Name(number int) string {
	if e, ok := Lookup(number); ok {
		return e.Name
	}
	return "#" + strconv.Itoa(number)
}

// Len is the highest known species number.
func Len() int { return len(entries) }

var entries = []Entry{
	{1, "Bulbasaur", []string{"grass", "poison"}},
	{2, "Ivysaur", []string{"grass", "poison"}},
	{3, "Venusaur", []string{"grass", "poison"}},
	{4, "Charmander", []string{"fire"}},
	{5, "Charmeleon", []string{"fire"}},
	{6, "Charizard", []string{"fire", "flying"}},
	{7, "Squirtle", []string{"water"}},
	{8, "Wartortle", []string{"water"}},
	{9, "Blastoise", []string{"water"}},
	{10, "Caterpie", []string{"bug"}},
	{11, "Metapod", []string{"bug"}},
	{12, "Butterfree", []string{"bug", "flying"}},
	{13, "Weedle", []string{"bug", "poison"}},
	{14, "Kakuna", []string{"bug", "poison"}},
	{15, "Beedrill", []string{"bug", "poison"}},
	{16, "Pidgey", []string{"normal", "flying"}},
	{17, "Pidgeotto", []string{"normal", "flying"}},
	{18, "Pidgeot", []string{"normal", "flying"}},
	{19, "Rattata", []string{"normal"}},
	{20, "Raticate", []string{"normal"}},
	{21, "Spearow", []string{"normal", "flying"}},
	{22, "Fearow", []string{"normal", "flying"}},
	{23, "Ekans", []string{"poison"}},
	{24, "Arbok", []string{"poison"}},
	{25, "Pikachu", []string{"electric"}},
	{26, "Raichu", []string{"electric"}},
	{27, "Sandshrew", []string{"ground"}},
	{28, "Sandslash", []string{"ground"}},
	{29, "Nidoran♀", []string{"poison"}},
	{30, "Nidorina", []string{"poison"}},
	{31, "Nidoqueen", []string{"poison", "ground"}},
	{32, "Nidoran♂", []string{"poison"}},
	{33, "Nidorino", []string{"poison"}},
	{34, "Nidoking", []string{"poison", "ground"}},
	{35, "Clefairy", []string{"fairy"}},
	{36, "Clefable", []string{"fairy"}},
	{37, "Vulpix", []string{"fire"}},
	{38, "Ninetales", []string{"fire"}},
	{39, "Jigglypuff", []string{"normal", "fairy"}},
	{40, "Wigglytuff", []string{"normal", "fairy"}},
	{41, "Zubat", []string{"poison", "flying"}},
	{42, "Golbat", []string{"poison", "flying"}},
	{43, "Oddish", []string{"grass", "poison"}},
	{44, "Gloom", []string{"grass", "poison"}},
	{45, "Vileplume", []string{"grass", "poison"}},
	{46, "Paras", []string{"bug", "grass"}},
	{47, "Parasect", []string{"bug", "grass"}},
	{48, "Venonat", []string{"bug", "poison"}},
	{49, "Venomoth", []string{"bug", "poison"}},
	{50, "Diglett", []string{"ground"}},
	{51, "Dugtrio", []string{"ground"}},
	{52, "Meowth", []string{"normal"}},
	{53, "Persian", []string{"normal"}},
	{54, "Psyduck", []string{"water"}},
	{55, "Golduck", []string{"water"}},
	{56, "Mankey", []string{"fighting"}},
	{57, "Primeape", []string{"fighting"}},
	{58, "Growlithe", []string{"fire"}},
	{59, "Arcanine", []string{"fire"}},
	{60, "Poliwag", []string{"water"}},
	{61, "Poliwhirl", []string{"water"}},
	{62, "Poliwrath", []string{"water", "fighting"}},
	{63, "Abra", []string{"psychic"}},
	{64, "Kadabra", []string{"psychic"}},
	{65, "Alakazam", []string{"psychic"}},
	{66, "Machop", []string{"fighting"}},
	{67, "Machoke", []string{"fighting"}},
	{68, "Machamp", []string{"fighting"}},
	{69, "Bellsprout", []string{"grass", "poison"}},
	{70, "Weepinbell", []string{"grass", "poison"}},
	{71, "Victreebel", []string{"grass", "poison"}},
	{72, "Tentacool", []string{"water", "poison"}},
	{73, "Tentacruel", []string{"water", "poison"}},
	{74, "Geodude", []string{"rock", "ground"}},
	{75, "Graveler", []string{"rock", "ground"}},
	{76, "Golem", []string{"rock", "ground"}},
	{77, "Ponyta", []string{"fire"}},
	{78, "Rapidash", []string{"fire"}},
	{79, "Slowpoke", []string{"water", "psychic"}},
	{80, "Slowbro", []string{"water", "psychic"}},
	{81, "Magnemite", []string{"electric", "steel"}},
	{82, "Magneton", []string{"electric", "steel"}},
	{83, "Farfetch'd", []string{"normal", "flying"}},
	{84, "Doduo", []string{"normal", "flying"}},
	{85, "Dodrio", []string{"normal", "flying"}},
	{86, "Seel", []string{"water"}},
	{87, "Dewgong", []string{"water", "ice"}},
	{88, "Grimer", []string{"poison"}},
	{89, "Muk", []string{"poison"}},
	{90, "Shellder", []string{"water"}},
	{91, "Cloyster", []string{"water", "ice"}},
	{92, "Gastly", []string{"ghost", "poison"}},
	{93, "Haunter", []string{"ghost", "poison"}},
	{94, "Gengar", []string{"ghost", "poison"}},
	{95, "Onix", []string{"rock", "ground"}},
	{96, "Drowzee", []string{"psychic"}},
	{97, "Hypno", []string{"psychic"}},
	{98, "Krabby", []string{"water"}},
	{99, "Kingler", []string{"water"}},
	{100, "Voltorb", []string{"electric"}},
	{101, "Electrode", []string{"electric"}},
	{102, "Exeggcute", []string{"grass", "psychic"}},
	{103, "Exeggutor", []string{"grass", "psychic"}},
	{104, "Cubone", []string{"ground"}},
	{105, "Marowak", []string{"ground"}},
	{106, "Hitmonlee", []string{"fighting"}},
	{107, "Hitmonchan", []string{"fighting"}},
	{108, "Lickitung", []string{"normal"}},
	{109, "Koffing", []string{"poison"}},
	{110, "Weezing", []string{"poison"}},
	{111, "Rhyhorn", []string{"ground", "rock"}},
	{112, "Rhydon", []string{"ground", "rock"}},
	{113, "Chansey", []string{"normal"}},
	{114, "Tangela", []string{"grass"}},
	{115, "Kangaskhan", []string{"normal"}},
	{116, "Horsea", []string{"water"}},
	{117, "Seadra", []string{"water"}},
	{118, "Goldeen", []string{"water"}},
	{119, "Seaking", []string{"water"}},
	{120, "Staryu", []string{"water"}},
	{121, "Starmie", []string{"water", "psychic"}},
	{122, "Mr. Mime", []string{"psychic", "fairy"}},
	{123, "Scyther", []string{"bug", "flying"}},
	{124, "Jynx", []string{"ice", "psychic"}},
	{125, "Electabuzz", []string{"electric"}},
	{126, "Magmar", []string{"fire"}},
	{127, "Pinsir", []string{"bug"}},
	{128, "Tauros", []string{"normal"}},
	{129, "Magikarp", []string{"water"}},
	{130, "Gyarados", []string{"water", "flying"}},
	{131, "Lapras", []string{"water", "ice"}},
	{132, "Ditto", []string{"normal"}},
	{133, "Eevee", []string{"normal"}},
	{134, "Vaporeon", []string{"water"}},
	{135, "Jolteon", []string{"electric"}},
	{136, "Flareon", []string{"fire"}},
	{137, "Porygon", []string{"normal"}},
	{138, "Omanyte", []string{"rock", "water"}},
	{139, "Omastar", []string{"rock", "water"}},
	{140, "Kabuto", []string{"rock", "water"}},
	{141, "Kabutops", []string{"rock", "water"}},
	{142, "Aerodactyl", []string{"rock", "flying"}},
	{143, "Snorlax", []string{"normal"}},
	{144, "Articuno", []string{"ice", "flying"}},
	{145, "Zapdos", []string{"electric", "flying"}},
	{146, "Moltres", []string{"fire", "flying"}},
	{147, "Dratini", []string{"dragon"}},
	{148, "Dragonair", []string{"dragon"}},
	{149, "Dragonite", []string{"dragon", "flying"}},
	{150, "Mewtwo", []string{"psychic"}},
	{151, "Mew", []string{"psychic"}},
}

var typeColors = map[string]string{
	"normal":   "#8a8a59",
	"fire":     "#f08030",
	"water":    "#6890f0",
	"electric": "#f8d030",
	"grass":    "#78c850",
	"ice":      "#98d8d8",
	"fighting": "#c03028",
	"poison":   "#a040a0",
	"ground":   "#e0c068",
	"flying":   "#a890f0",
	"psychic":  "#f85888",
	"bug":      "#a8b820",
	"rock":     "#b8a038",
	"ghost":    "#705898",
	"dragon":   "#7038f8",
	"steel":    "#b8b8d0",
	"fairy":    "#e898e8",
}

// TypeColor returns the map marker color for a type, or "" if unknown.
func TypeColor(typ string) string { return typeColors[typ] }
