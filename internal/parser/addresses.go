package parser

import "strings"

// AddressSet is a per-chain set of contract addresses a protocol parser
// recognizes, keyed lowercase.
type AddressSet map[string]map[string]bool

func NewAddressSet(byChain map[string][]string) AddressSet {
	out := AddressSet{}
	for chain, addrs := range byChain {
		m := map[string]bool{}
		for _, a := range addrs {
			m[strings.ToLower(a)] = true
		}
		out[strings.ToLower(chain)] = m
	}
	return out
}

func (s AddressSet) Contains(chain, address string) bool {
	m, ok := s[strings.ToLower(chain)]
	if !ok {
		return false
	}
	return m[strings.ToLower(address)]
}
