// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

package rapic

// encKind tags an entry in the ASCII ray encoding table.
type encKind uint8

const (
	encError encKind = iota
	encTerminate
	encValue
	encDigit
	encDelta
)

// encEntry maps one byte of an ASCII encoded ray to its decoding directive.
type encEntry struct {
	kind encKind
	val  int16
	val2 int16
}

func lend() encEntry           { return encEntry{kind: encTerminate} }
func lnul() encEntry           { return encEntry{kind: encError} }
func lval(x int16) encEntry    { return encEntry{kind: encValue, val: x} }
func lrel(x int16) encEntry    { return encEntry{kind: encDigit, val: x} }
func ldel(x, y int16) encEntry { return encEntry{kind: encDelta, val: x, val2: y} }

// lookup translates each byte of an ASCII encoded ray into an absolute level,
// an RLE digit, a two sample delta or a terminator. The table is fixed by the
// protocol and shared by all connections.
var lookup = [256]encEntry{
	lend(), lnul(), lnul(), lnul(), lnul(), lnul(), lnul(), lnul(), // 00-07
	lnul(), lnul(), lend(), lnul(), lnul(), lend(), lnul(), lnul(), // 08-0f
	lnul(), lnul(), lnul(), lnul(), lnul(), lnul(), lnul(), lnul(), // 10-17
	lnul(), lnul(), lnul(), lnul(), lnul(), lnul(), lnul(), lnul(), // 18-1f
	lnul(), ldel(-3, -3), lval(16), lnul(), ldel(-3, 3), lnul(), ldel(3, 3), lval(17), // 20-27
	ldel(-3, 2), ldel(3, 2), lval(18), ldel(1, 0), lval(19), ldel(-1, 0), ldel(0, 0), ldel(-3, -2), // 28-2f
	lrel(0), lrel(1), lrel(2), lrel(3), lrel(4), lrel(5), lrel(6), lrel(7), // 30-37
	lrel(8), lrel(9), lval(20), lval(21), ldel(0, -1), lval(22), ldel(0, 1), lval(23), // 38-3f
	ldel(3, -3), lval(0), lval(1), lval(2), lval(3), lval(4), lval(5), lval(6), // 40-47
	lval(7), lval(8), lval(9), lval(10), lval(11), lval(12), lval(13), lval(14), // 48-4f
	lval(15), lval(24), lval(25), ldel(-1, 2), ldel(0, 2), ldel(1, 2), ldel(2, 2), ldel(-1, 3), // 50-57
	ldel(0, 3), ldel(1, 3), lval(26), ldel(-2, -3), ldel(3, -2), ldel(2, -3), lval(27), lval(28), // 58-5f
	lnul(), ldel(-1, -3), ldel(0, -3), ldel(1, -3), ldel(-2, -2), ldel(-1, -2), ldel(0, -2), ldel(1, -2), // 60-67
	ldel(2, -2), ldel(-3, -1), ldel(-2, -1), ldel(-1, -1), ldel(1, -1), ldel(2, -1), ldel(3, -1), ldel(-3, 0), // 68-6f
	ldel(-2, 0), ldel(2, 0), ldel(3, 0), ldel(-3, 1), ldel(-2, 1), ldel(-1, 1), ldel(1, 1), ldel(2, 1), // 70-77
	ldel(3, 1), ldel(-2, 2), lval(29), ldel(-2, 3), lval(30), ldel(2, 3), lval(31), lnul(), // 78-7f
	lval(32), lval(33), lval(34), lval(35), lval(36), lval(37), lval(38), lval(39), // 80-87
	lval(40), lval(41), lval(42), lval(43), lval(44), lval(45), lval(46), lval(47), // 88-8f
	lval(48), lval(49), lval(50), lval(51), lval(52), lval(53), lval(54), lval(55), // 90-97
	lval(56), lval(57), lval(58), lval(59), lval(60), lval(61), lval(62), lval(63), // 98-9f
	lval(64), lval(65), lval(66), lval(67), lval(68), lval(69), lval(70), lval(71), // a0-a7
	lval(72), lval(73), lval(74), lval(75), lval(76), lval(77), lval(78), lval(79), // a8-af
	lval(80), lval(81), lval(82), lval(83), lval(84), lval(85), lval(86), lval(87), // b0-b7
	lval(88), lval(89), lval(90), lval(91), lval(92), lval(93), lval(94), lval(95), // b8-bf
	lval(96), lval(97), lval(98), lval(99), lval(100), lval(101), lval(102), lval(103), // c0-c7
	lval(104), lval(105), lval(106), lval(107), lval(108), lval(109), lval(110), lval(111), // c8-cf
	lval(112), lval(113), lval(114), lval(115), lval(116), lval(117), lval(118), lval(119), // d0-d7
	lval(120), lval(121), lval(122), lval(123), lval(124), lval(125), lval(126), lval(127), // d8-df
	lval(128), lval(129), lval(130), lval(131), lval(132), lval(133), lval(134), lval(135), // e0-e7
	lval(136), lval(137), lval(138), lval(139), lval(140), lval(141), lval(142), lval(143), // e8-ef
	lval(144), lval(145), lval(146), lval(147), lval(148), lval(149), lval(150), lval(151), // f0-f7
	lval(152), lval(153), lval(154), lval(155), lval(156), lval(157), lval(158), lval(159), // f8-ff
}

// levelByte is the reverse of the value rows of lookup: the wire byte that
// encodes each absolute level in an ASCII ray.
var levelByte [160]byte

func init() {
	for b := 0; b < 256; b++ {
		if e := lookup[b]; e.kind == encValue {
			levelByte[e.val] = byte(b)
		}
	}
}
