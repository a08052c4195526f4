// Package columnar encodes arrow arrays into the self-describing byte
// chunks stored in native fls artifacts, and decodes them back.
//
// A chunk starts with a validity section followed by the encoded values of
// the non-null slots only:
//
//	validity  0x00                      every slot is valid
//	          0x01 | ceil(n/8) bytes    LSB-first bitmap, 1 = valid
//	values    depends on the Encoding
//
// Encodings:
//
//	EncodingDeltaVarint  integers, dates, timestamps and decimals as int64;
//	                     the first value and then each difference to the
//	                     previous one, zigzag varint, wrapping arithmetic
//	EncodingPlain        strings as uvarint length + bytes
//	EncodingDictionary   strings when fewer than half the values are
//	                     distinct: uvarint entry count, entries, then one
//	                     uvarint code per value
//	EncodingBitpack      booleans, 8 per byte LSB-first
//	EncodingRaw          IEEE-754 bits, little endian
//
// The value count is not stored in the chunk; the caller keeps it in the
// artifact footer.
package columnar
