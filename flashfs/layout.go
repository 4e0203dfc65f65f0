// Package flashfs implements the on-logical-block layout (C4) and file
// driver (C5): superblock, block-flag bitmap, tag-name table, filename
// table, file-header table, singly-linked file data chains, descriptor
// table, and the full file/tag lifecycle built on top of an FTL.
package flashfs

import "github.com/YaPish/diploma-file-system/ftl"

// BlockSize is the FS-visible logical block size: the FTL's per-LBI
// payload capacity.
const BlockSize = ftl.PayloadSize // 250

// DataSize is the portion of a file data block available to file content,
// after its 2-byte next-LBI link.
const DataSize = BlockSize - 2 // 248

// FileCount is the number of file slots in the filename/header tables.
const FileCount = 2000

// DescriptorCount is the number of concurrently open file descriptors.
const DescriptorCount = 128

// TagCount is the number of named tag slots.
const TagCount = 52

// NameSize is the fixed file-name length, including any trailing NUL
// padding.
const NameSize = 50

// TagNameSize is the fixed tag-name length, including any trailing NUL
// padding.
const TagNameSize = 19

// UnsetID is the sentinel marking an absent file/descriptor id, truncated
// from UN_SET (0xFFFFFFFF) to fit FILE_ID's 16-bit width.
const UnsetID uint16 = 0xFFFF

// endOfChain marks the end of a file's data-block chain. Per spec, a
// next-LBI of 0xFFFF or any value >= ftl.BlockCount terminates the chain.
const endOfChain uint16 = 0xFFFF

// Logical block layout.
const (
	lbiSuperblock  = 0
	lbiBitmapStart = 1
	lbiBitmapCount = 5
	lbiBitmapEnd   = lbiBitmapStart + lbiBitmapCount // 6

	lbiTagStart = lbiBitmapEnd // 6
	tagsPerBlock = 13
	lbiTagCount = (TagCount + tagsPerBlock - 1) / tagsPerBlock // 4
	lbiTagEnd   = lbiTagStart + lbiTagCount                    // 10

	lbiNameStart   = lbiTagEnd // 10
	namesPerBlock  = BlockSize / NameSize
	lbiNameCount   = (FileCount + namesPerBlock - 1) / namesPerBlock // 400
	lbiNameEnd     = lbiNameStart + lbiNameCount                     // 410

	headerSize       = 25
	headersPerBlock  = BlockSize / headerSize
	lbiHeaderStart   = lbiNameEnd // 410
	lbiHeaderCount   = (FileCount + headersPerBlock - 1) / headersPerBlock // 200
	lbiHeaderEnd     = lbiHeaderStart + lbiHeaderCount                     // 610

	lbiDataStart = lbiHeaderEnd // 610
	lbiDataEnd   = ftl.BlockCount
)

// maxFileSize is FS_MAX_FILE_SIZE: the per-file cap a write must not push
// position+length past. A file cannot outgrow the data region itself, so
// the cap is the full byte capacity of the data blocks.
const maxFileSize = uint32(lbiDataEnd-lbiDataStart) * DataSize
