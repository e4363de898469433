package bpe

// stage identifies which symbol mapping a coded word uses
type stage int

const (
	stageSignificance stage = iota
	stageSign
	stageRefinement
	numStages
)

// codeword is a prefix code: the n low bits of bits, MSB first
type codeword struct {
	bits uint32
	n    int
}

// Variable-length codes per word length, indexed [length][option][symbol].
// Option tables are tuned to increasingly flat symbol distributions; every
// table satisfies the Kraft equality so any bit sequence parses.
var wordCodes = [5][][]codeword{
	2: {
		{{0b1, 1}, {0b01, 2}, {0b001, 3}, {0b000, 3}},
	},
	3: {
		{{0b1, 1}, {0b01, 2}, {0b001, 3}, {0b00000, 5}, {0b00001, 5}, {0b00010, 5}, {0b000110, 6}, {0b000111, 6}},
		{{0b10, 2}, {0b11, 2}, {0b010, 3}, {0b011, 3}, {0b0010, 4}, {0b0011, 4}, {0b0000, 4}, {0b0001, 4}},
	},
	4: {
		{
			{0b1, 1}, {0b01, 2}, {0b001, 3}, {0b0001, 4},
			{0b0000000, 7}, {0b0000001, 7}, {0b0000010, 7}, {0b0000011, 7},
			{0b00001000, 8}, {0b00001001, 8}, {0b00001010, 8}, {0b00001011, 8},
			{0b00001100, 8}, {0b00001101, 8}, {0b00001110, 8}, {0b00001111, 8},
		},
		{
			{0b10, 2}, {0b11, 2}, {0b010, 3}, {0b011, 3}, {0b0010, 4}, {0b0011, 4},
			{0b000000, 6}, {0b000001, 6}, {0b000010, 6}, {0b000011, 6}, {0b000100, 6}, {0b000101, 6},
			{0b0001100, 7}, {0b0001101, 7}, {0b0001110, 7}, {0b0001111, 7},
		},
		{
			{0b100, 3}, {0b101, 3}, {0b110, 3}, {0b111, 3},
			{0b0100, 4}, {0b0101, 4}, {0b0110, 4}, {0b0111, 4},
			{0b00000, 5}, {0b00001, 5}, {0b00010, 5}, {0b00011, 5},
			{0b00100, 5}, {0b00101, 5}, {0b00110, 5}, {0b00111, 5},
		},
	},
}

// Word to symbol mappings, indexed [stage][length][word]. Significance
// words are ranked by population count so sparse words get short codes;
// sign and refinement words are close to uniform and map to themselves.
var wordToSymbol = [numStages][5][]int{
	stageSignificance: {
		2: {0, 1, 2, 3},
		3: {0, 1, 2, 4, 3, 5, 6, 7},
		4: {0, 1, 2, 5, 3, 6, 7, 11, 4, 8, 9, 12, 10, 13, 14, 15},
	},
	stageSign: {
		2: {0, 1, 2, 3},
		3: {0, 1, 2, 3, 4, 5, 6, 7},
		4: {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	},
	stageRefinement: {
		2: {0, 1, 2, 3},
		3: {0, 1, 2, 3, 4, 5, 6, 7},
		4: {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	},
}

// symbolToWord is the inverse of wordToSymbol
var symbolToWord [numStages][5][]int

// codeLookup maps (length, option, codeword) back to a symbol
var codeLookup [5][]map[codeword]int

func init() {
	for st := range wordToSymbol {
		for n := 2; n <= 4; n++ {
			fwd := wordToSymbol[st][n]
			inv := make([]int, len(fwd))
			for w, s := range fwd {
				inv[s] = w
			}
			symbolToWord[st][n] = inv
		}
	}
	for n := 2; n <= 4; n++ {
		codeLookup[n] = make([]map[codeword]int, len(wordCodes[n]))
		for opt, table := range wordCodes[n] {
			m := make(map[codeword]int, len(table))
			for sym, cw := range table {
				m[cw] = sym
			}
			codeLookup[n][opt] = m
		}
	}
}

// optionIDBits returns how many bits signal the code option of a length
func optionIDBits(n int) int {
	if n == 2 {
		return 1
	}
	return 2
}

// uncodedID returns the option id meaning "word written as plain bits"
func uncodedID(n int) int {
	return (1 << optionIDBits(n)) - 1
}

// numCodeOptions returns the number of variable-length tables for a length
func numCodeOptions(n int) int {
	return len(wordCodes[n])
}

// wordCost returns the coded length of a word under an option
func wordCost(st stage, n, option int, word uint32) int {
	if option == uncodedID(n) {
		return n
	}
	return wordCodes[n][option][wordToSymbol[st][n][word]].n
}

// encodeWord returns the codeword of a word under an option
func encodeWord(st stage, n, option int, word uint32) codeword {
	if option == uncodedID(n) {
		return codeword{bits: word, n: n}
	}
	return wordCodes[n][option][wordToSymbol[st][n][word]]
}

// lookupCode returns the word for a complete codeword, if any
func lookupCode(st stage, n, option int, cw codeword) (uint32, bool) {
	sym, ok := codeLookup[n][option][cw]
	if !ok {
		return 0, false
	}
	return uint32(symbolToWord[st][n][sym]), true
}

// maxCodeLen returns the longest codeword of a table
func maxCodeLen(n, option int) int {
	longest := 0
	for _, cw := range wordCodes[n][option] {
		if cw.n > longest {
			longest = cw.n
		}
	}
	return longest
}

// bestOption picks the cheapest option for the words of one length; ties
// go to the lower option id.
func bestOption(st []stage, n int, words []uint32) int {
	best, bestCost := uncodedID(n), n*len(words)
	for opt := 0; opt < numCodeOptions(n); opt++ {
		cost := 0
		for i, w := range words {
			cost += wordCost(st[i], n, opt, w)
		}
		if cost < bestCost {
			best, bestCost = opt, cost
		}
	}
	return best
}
